package mocks

import (
	"context"
	"sync"
)

type OpsAlertCall struct {
	BookingID string
	Kind      string
	Detail    string
}

// MockOpsAlerts records operator alerts instead of writing them to
// postgres.
type MockOpsAlerts struct {
	mu     sync.Mutex
	Alerts []OpsAlertCall
}

func NewMockOpsAlerts() *MockOpsAlerts {
	return &MockOpsAlerts{}
}

func (m *MockOpsAlerts) Add(ctx context.Context, bookingID, kind, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Alerts = append(m.Alerts, OpsAlertCall{BookingID: bookingID, Kind: kind, Detail: detail})

	return nil
}
