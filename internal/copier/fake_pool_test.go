package copier

import (
	"context"
	"fmt"
	"sync"

	"github.com/mirrorfx/router/internal/models"
	"github.com/mirrorfx/router/internal/pool"
)

// fakePool is a scriptable in-memory pool service. Executes append to the
// destination's position list so exit verification sees them.
type fakePool struct {
	mu sync.Mutex

	positions    map[string][]models.Position
	positionsErr map[string]error
	accounts     map[string]pool.AccountInfo

	executed    []pool.ExecuteRequest
	executeErrs []error
	nextID      int

	closed    []string
	closeErrs map[string]error

	modifies []modifyCall
}

type modifyCall struct {
	accountID  string
	positionID string
	stopLoss   *float64
	takeProfit *float64
}

var _ pool.API = (*fakePool)(nil)

func newFakePool() *fakePool {
	return &fakePool{
		positions:    make(map[string][]models.Position),
		positionsErr: make(map[string]error),
		accounts:     make(map[string]pool.AccountInfo),
		closeErrs:    make(map[string]error),
	}
}

func (f *fakePool) setPositions(accountID string, positions ...models.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[accountID] = positions
}

func (f *fakePool) AccountInfo(_ context.Context, accountID, _ string) (*pool.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.accounts[accountID]
	if !ok {
		return &pool.AccountInfo{Equity: 10000, Currency: "USD"}, nil
	}
	return &info, nil
}

func (f *fakePool) Positions(_ context.Context, accountID, _ string) ([]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.positionsErr[accountID]; err != nil {
		return nil, err
	}
	out := make([]models.Position, len(f.positions[accountID]))
	copy(out, f.positions[accountID])
	return out, nil
}

func (f *fakePool) ExecuteTrade(_ context.Context, req pool.ExecuteRequest) (*pool.ExecuteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, req)
	if len(f.executeErrs) > 0 {
		err := f.executeErrs[0]
		f.executeErrs = f.executeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.nextID++
	id := fmt.Sprintf("dp-%d", f.nextID)
	openPrice := 1.2345
	f.positions[req.AccountID] = append(f.positions[req.AccountID], models.Position{
		ID:         id,
		Symbol:     req.Symbol,
		Side:       req.Action,
		Volume:     req.Volume,
		OpenPrice:  openPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	})
	return &pool.ExecuteResult{PositionID: id, OpenPrice: openPrice}, nil
}

func (f *fakePool) ModifyPosition(_ context.Context, accountID, _, positionID string, stopLoss, takeProfit *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modifies = append(f.modifies, modifyCall{accountID, positionID, stopLoss, takeProfit})
	return nil
}

func (f *fakePool) ClosePosition(_ context.Context, accountID, _, positionID string) (*pool.CloseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.closeErrs[positionID]; err != nil {
		return nil, err
	}
	kept := f.positions[accountID][:0]
	found := false
	for _, p := range f.positions[accountID] {
		if p.ID == positionID {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	f.positions[accountID] = kept
	if !found {
		return nil, &pool.APIError{Status: 404, Body: "position not found"}
	}
	f.closed = append(f.closed, positionID)
	return &pool.CloseResult{Profit: 42.5, OrderID: "o-" + positionID}, nil
}

func (f *fakePool) History(context.Context, string, int, int) ([]pool.HistoryTrade, error) {
	return nil, nil
}

func (f *fakePool) RegisterReconnectionCallback(context.Context, string) error {
	return nil
}

func (f *fakePool) executeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executed)
}

func (f *fakePool) closedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.closed))
	copy(out, f.closed)
	return out
}

func (f *fakePool) modifyCalls() []modifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]modifyCall, len(f.modifies))
	copy(out, f.modifies)
	return out
}
