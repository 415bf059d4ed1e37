package stub

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/overseasops/claimgrid/api"
)

var (
	seedCustomers  = []string{"Acme Logistics", "Northwind Traders", "Blue Harbor Co", "Kestrel Imports", "Maresol GmbH", "Tanaka Shoten", "Vega Retail", "Ostrova LLC"}
	seedWarehouses = []string{"US-EAST-1", "US-WEST-2", "EU-DE-1", "UK-LON-1", "AU-SYD-1"}
	seedSKUs       = []string{"SKU-TBL-001", "SKU-CHR-204", "SKU-LMP-117", "SKU-BKS-330", "SKU-ELC-555", "SKU-TOY-092"}
	seedTypes      = []api.ClaimType{api.TypeLost, api.TypeDamaged, api.TypeShortage, api.TypeDelay, api.TypeOther}
	seedStatuses   = []api.Status{api.StatusPending, api.StatusReviewing, api.StatusApproved, api.StatusRejected, api.StatusPaid}
	seedCurrencies = []string{"USD", "EUR", "GBP"}
)

// Seed fills the store with n plausible claims. rng with a fixed seed
// makes the data set reproducible across runs.
func Seed(s *Store, n int, rng *rand.Rand) error {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	base := time.Now().UTC().Add(-90 * 24 * time.Hour).Truncate(time.Second)
	for i := 0; i < n; i++ {
		submitted := base.Add(time.Duration(rng.Intn(90*24)) * time.Hour)
		declared := float64(rng.Intn(20000)) / 10
		rec := api.ClaimRecord{
			CustomerName:    seedCustomers[rng.Intn(len(seedCustomers))],
			CustomerContact: fmt.Sprintf("contact%03d@example.com", i),
			OrderNo:         fmt.Sprintf("ORD-%06d", 100000+i),
			TrackingNo:      fmt.Sprintf("TRK%09d", rng.Intn(1_000_000_000)),
			SKU:             seedSKUs[rng.Intn(len(seedSKUs))],
			Warehouse:       seedWarehouses[rng.Intn(len(seedWarehouses))],
			ShipDate:        submitted.Add(-72 * time.Hour).Format("2006-01-02"),
			Type:            seedTypes[rng.Intn(len(seedTypes))],
			Description:     "shipment issue reported by customer",
			DeclaredValue:   declared,
			Quantity:        1 + rng.Intn(12),
			Amount:          declared * (0.3 + 0.7*rng.Float64()),
			Currency:        seedCurrencies[rng.Intn(len(seedCurrencies))],
			Ratio:           float64(rng.Intn(101)) / 100,
			SubmittedAt:     submitted,
			Status:          seedStatuses[rng.Intn(len(seedStatuses))],
		}
		if _, err := s.Insert(&rec); err != nil {
			return fmt.Errorf("seed claim %d: %w", i, err)
		}
	}
	return nil
}
