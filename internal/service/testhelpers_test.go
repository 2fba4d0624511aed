package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openServiceTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func strPtr(s string) *string {
	return &s
}

func int64Ptr(v int64) *int64 {
	return &v
}

type ledgerFixture struct {
	db          *gorm.DB
	commissions *repository.GormCommissionRepository
	payouts     *repository.GormPayoutRepository
	directory   *DirectoryService
	rules       *CommissionRuleService
	ledger      *LedgerService
}

func newLedgerFixture(t *testing.T, name string) *ledgerFixture {
	t.Helper()
	db := openServiceTestDB(t, name)
	ruleRepo := repository.NewCommissionRuleRepository(db)
	f := &ledgerFixture{
		db:          db,
		commissions: repository.NewCommissionRepository(db),
		payouts:     repository.NewPayoutRepository(db),
		directory: NewDirectoryService(
			repository.NewVendorProfileRepository(db),
			repository.NewTenantSettingRepository(db),
			models.MustRate("0"),
		),
		rules: NewCommissionRuleService(ruleRepo),
	}
	f.ledger = NewLedgerService(f.commissions, f.payouts, NewRuleResolver(ruleRepo, 0), f.directory)
	return f
}

func (f *ledgerFixture) setTenant(t *testing.T, setting models.TenantSetting) {
	t.Helper()
	if _, err := f.directory.SaveTenantSetting(&setting); err != nil {
		t.Fatalf("save tenant setting failed: %v", err)
	}
}

func (f *ledgerFixture) addPercentageRule(t *testing.T, tenantID, rate string) *models.CommissionRule {
	t.Helper()
	rule, err := f.rules.Create(context.Background(), &models.CommissionRule{
		TenantID:   tenantID,
		Name:       "default " + rate,
		Type:       constants.CommissionRuleTypePercentage,
		Percentage: models.MustRate(rate),
	})
	if err != nil {
		t.Fatalf("create rule failed: %v", err)
	}
	return rule
}

func (f *ledgerFixture) recordSale(t *testing.T, event SaleEvent) *models.CommissionTransaction {
	t.Helper()
	if event.CurrencyCode == "" {
		event.CurrencyCode = "USD"
	}
	if event.Subtotal == 0 {
		event.Subtotal = event.Total
	}
	txn, err := f.ledger.RecordSale(context.Background(), event)
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	return txn
}

func (f *ledgerFixture) saveProfile(t *testing.T, profile models.VendorPayoutProfile) {
	t.Helper()
	if _, err := f.directory.SaveVendorProfile(&profile); err != nil {
		t.Fatalf("save vendor profile failed: %v", err)
	}
}

func (f *ledgerFixture) batchService(defaultMinimum int64) *PayoutBatchService {
	return NewPayoutBatchService(f.commissions, f.payouts, f.directory, f.directory, defaultMinimum)
}
