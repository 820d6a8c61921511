package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"equityBot/internal/domain"
	"equityBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func openPosition(t *testing.T, symbol, tag string, qty int64, price float64, at time.Time) *domain.Position {
	t.Helper()
	pos, err := domain.NewPosition(symbol, qty, price, at)
	require.NoError(t, err)
	pos.StrategyTag = tag
	pos.Stage = 2
	return pos
}

var monday = time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC)

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestRepository_CreateAndFindPosition(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Repository) error
		pos     *domain.Position
		wantErr bool
	}{
		{
			name:    "valid position",
			pos:     openPosition(t, "AAPL", "trend_follow", 100, 187.5, monday),
			wantErr: false,
		},
		{
			name: "duplicate open position",
			setup: func(r *Repository) error {
				_, err := r.Create(context.Background(), openPosition(t, "AAPL", "trend_follow", 50, 180, monday))
				return err
			},
			pos:     openPosition(t, "AAPL", "trend_follow", 100, 187.5, monday.Add(time.Hour)),
			wantErr: true, // unique open-symbol index
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := setupTestDB(t)
			ctx := context.Background()

			if tt.setup != nil {
				require.NoError(t, tt.setup(repo))
			}

			id, err := repo.Create(ctx, tt.pos)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, ports.ErrUpdateFailed))
				return
			}
			require.NoError(t, err)
			assert.Greater(t, id, int64(0))
			assert.Equal(t, id, tt.pos.ID)

			found, err := repo.FindByID(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, found)

			assert.Equal(t, tt.pos.Symbol, found.Symbol)
			assert.Equal(t, tt.pos.StrategyTag, found.StrategyTag)
			assert.Equal(t, tt.pos.EntryPrice, found.EntryPrice)
			assert.Equal(t, tt.pos.TotalQuantity, found.TotalQuantity)
			assert.Equal(t, tt.pos.RemainingQuantity, found.RemainingQuantity)
			assert.Equal(t, tt.pos.HighestPrice, found.HighestPrice)
			assert.Equal(t, 2, found.Stage)
			assert.Equal(t, domain.StatusOpen, found.Status)
			assert.True(t, tt.pos.EntryTime.Equal(found.EntryTime))
		})
	}
}

func TestRepository_UpdatePosition(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	pos := openPosition(t, "MSFT", "trend_follow", 100, 400, monday)
	_, err := repo.Create(ctx, pos)
	require.NoError(t, err)

	// Partial exit keeps the position open with tracking state.
	_, err = pos.ApplyExit(40, 416, domain.CloseReasonPartialTP, monday.Add(time.Hour))
	require.NoError(t, err)
	pos.CompleteTier()
	pos.ApplyTracking(418, false)
	require.NoError(t, repo.Update(ctx, pos))

	found, err := repo.FindOpenBySymbol(ctx, "MSFT")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(60), found.RemainingQuantity)
	assert.Equal(t, 1, found.PartialStage)
	assert.Equal(t, 418.0, found.HighestPrice)
	assert.InDelta(t, 640.0, found.RealizedPNL, 1e-9)

	// Final exit closes it.
	_, err = pos.ApplyExit(60, 430, domain.CloseReasonTrailingStop, monday.Add(2*time.Hour))
	require.NoError(t, err)
	pos.ApplyTracking(440, true)
	require.NoError(t, repo.Update(ctx, pos))

	found, err = repo.FindByID(ctx, pos.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, domain.StatusClosed, found.Status)
	assert.Equal(t, domain.CloseReasonTrailingStop, found.CloseReason)
	assert.Zero(t, found.RemainingQuantity)
	assert.True(t, found.TrailingArmed)
	assert.True(t, monday.Add(2*time.Hour).Equal(found.ExitTime))

	open, err := repo.FindOpenBySymbol(ctx, "MSFT")
	require.NoError(t, err)
	assert.Nil(t, open)

	missing := openPosition(t, "NVDA", "trend_follow", 1, 1, monday)
	missing.ID = 999
	err = repo.Update(ctx, missing)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_FindOpenAndCountEntries(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	yesterday := monday.Add(-24 * time.Hour)
	for _, p := range []*domain.Position{
		openPosition(t, "AAPL", "trend_follow", 10, 100, yesterday),
		openPosition(t, "MSFT", "trend_follow", 10, 100, monday.Add(time.Minute)),
		openPosition(t, "NVDA", "breakout", 10, 100, monday.Add(2*time.Minute)),
	} {
		_, err := repo.Create(ctx, p)
		require.NoError(t, err)
	}

	open, err := repo.FindOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, "AAPL", open[0].Symbol, "oldest first")

	dayStart := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	counts, err := repo.CountEntriesSince(ctx, dayStart)
	require.NoError(t, err)
	assert.Equal(t, map[domain.EntryKey]int{
		{Symbol: "MSFT", Strategy: "trend_follow"}: 1,
		{Symbol: "NVDA", Strategy: "breakout"}:     1,
	}, counts)
}

func TestRepository_TradeJournal(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	newYork, err := time.LoadLocation("America/New_York")
	if err != nil {
		newYork = time.UTC
	}
	trades := []*domain.Trade{
		{PositionID: 1, Symbol: "AAPL", EntryPrice: 100, ExitPrice: 95, Quantity: 10, PNL: -50,
			EntryTime: monday.Add(-48 * time.Hour), ExitTime: monday.Add(-47 * time.Hour), CloseReason: domain.CloseReasonHardStop, Final: true},
		{PositionID: 2, Symbol: "AAPL", EntryPrice: 100, ExitPrice: 104, Quantity: 4, PNL: 16,
			EntryTime: monday, ExitTime: monday.Add(time.Hour).In(newYork), CloseReason: domain.CloseReasonPartialTP},
		{PositionID: 2, Symbol: "AAPL", EntryPrice: 100, ExitPrice: 98, Quantity: 6, PNL: -12,
			EntryTime: monday, ExitTime: monday.Add(2 * time.Hour), CloseReason: domain.CloseReasonTimeExit, Final: true},
		{Symbol: "MSFT", EntryPrice: 50, ExitPrice: 55, Quantity: 10, PNL: 50,
			EntryTime: monday, ExitTime: monday.Add(3 * time.Hour)},
	}
	for _, tr := range trades {
		id, err := repo.CreateTrade(ctx, tr)
		require.NoError(t, err)
		assert.Equal(t, id, tr.ID)
	}

	dayStart := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	daily, err := repo.SumRealizedSince(ctx, dayStart)
	require.NoError(t, err)
	assert.InDelta(t, 54.0, daily, 1e-9)

	weekStart := dayStart.Add(-7 * 24 * time.Hour)
	weekly, err := repo.SumRealizedSince(ctx, weekStart)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, weekly, 1e-9)

	n, err := repo.CountTodayBySymbol(ctx, "AAPL", dayStart)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recent, err := repo.FindBySymbol(ctx, "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.CloseReasonTimeExit, recent[0].CloseReason)
	assert.True(t, recent[0].Final)
	assert.Equal(t, int64(2), recent[0].PositionID)
	assert.Equal(t, domain.CloseReasonPartialTP, recent[1].CloseReason)
	assert.False(t, recent[1].Final)

	msft, err := repo.FindBySymbol(ctx, "MSFT", 10)
	require.NoError(t, err)
	require.Len(t, msft, 1)
	assert.Zero(t, msft[0].PositionID)
}
