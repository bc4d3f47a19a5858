package perf

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/procuredesk/internal/procurement"
	procurementhttp "github.com/odyssey-erp/procuredesk/internal/procurement/http"
	"github.com/odyssey-erp/procuredesk/internal/records"
	pdtesting "github.com/odyssey-erp/procuredesk/testing"
)

const benchRecords = 2000

func newBenchDesk(tb testing.TB) *procurement.Desk {
	tb.Helper()
	ctx := context.Background()
	desk, err := procurement.OpenDesk(ctx, procurement.DeskConfig{
		Logger: pdtesting.DiscardLogger(),
	})
	require.NoError(tb, err)
	departments := []string{"Engineering", "Facilities", "Finance", "Sales"}
	for i := 0; i < benchRecords; i++ {
		_, err := desk.CreateRequisition(ctx, procurement.RequisitionInput{
			Title:      fmt.Sprintf("Requisition %04d", i),
			Department: departments[i%len(departments)],
			Requester:  fmt.Sprintf("U%d", i%25),
			Items: []procurement.LineItemInput{{
				Description: "Line",
				Quantity:    decimal.NewFromInt(int64(i%7 + 1)),
				UnitPrice:   decimal.NewFromInt(int64(i%13*10 + 5)),
			}},
		})
		require.NoError(tb, err)
	}
	return desk
}

func TestQueryLatencyTargets(t *testing.T) {
	if testing.Short() {
		t.Skip("latency sampling skipped in short mode")
	}
	desk := newBenchDesk(t)
	query := records.Query{
		Search:  "requisition 1",
		Filters: map[string]string{"department": "Finance"},
		Sort:    &records.Sort{Field: "totalAmount", Direction: records.Desc},
	}

	samples := make([]time.Duration, 0, 10)
	for i := 0; i < 10; i++ {
		start := time.Now()
		desk.Requisitions().Query(query)
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 2*time.Second {
		t.Fatalf("query latency regression: p95=%s threshold=%s", p95, 2*time.Second)
	}
}

func BenchmarkRequisitionQuery(b *testing.B) {
	desk := newBenchDesk(b)
	query := records.Query{
		Search: "requisition",
		Sort:   &records.Sort{Field: "title", Direction: records.Asc},
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		desk.Requisitions().Query(query)
	}
}

func BenchmarkRequisitionListHTTP(b *testing.B) {
	desk := newBenchDesk(b)
	router := chi.NewRouter()
	procurementhttp.NewHandler(pdtesting.DiscardLogger(), desk).MountRoutes(router)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/requisitions?status=draft&sort=createdAt&dir=desc", nil))
		if rr.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rr.Code)
		}
	}
}

func BenchmarkDashboard(b *testing.B) {
	desk := newBenchDesk(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		desk.Dashboard()
	}
}

func BenchmarkMarkOverdue(b *testing.B) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	desk, err := procurement.OpenDesk(ctx, procurement.DeskConfig{
		Seed:   procurement.DemoSeed(now),
		Logger: pdtesting.DiscardLogger(),
		Clock:  pdtesting.FixedClock(now),
	})
	require.NoError(b, err)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := desk.MarkOverdue(ctx, now); err != nil {
			b.Fatal(err)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
