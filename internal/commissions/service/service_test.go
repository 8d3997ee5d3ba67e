package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"crm_core_backend/internal/commissions/domain"
	"crm_core_backend/internal/commissions/repository"
	"crm_core_backend/internal/events"
	phasesdomain "crm_core_backend/internal/phases/domain"
	"crm_core_backend/platform/apperr"
	"crm_core_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type assignKey struct {
	tenantID uuid.UUID
	agentID  uuid.UUID
}

type fakeStore struct {
	mu          sync.Mutex
	templates   map[uuid.UUID]domain.Template
	assignments map[assignKey]uuid.UUID
	rows        map[uuid.UUID][]domain.LedgerRow
	collections map[uuid.UUID]domain.SaleCollection
	adjustments map[uuid.UUID][]domain.Adjustment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates:   make(map[uuid.UUID]domain.Template),
		assignments: make(map[assignKey]uuid.UUID),
		rows:        make(map[uuid.UUID][]domain.LedgerRow),
		collections: make(map[uuid.UUID]domain.SaleCollection),
		adjustments: make(map[uuid.UUID][]domain.Adjustment),
	}
}

func (f *fakeStore) GetTemplate(_ context.Context, id uuid.UUID) (domain.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tpl, ok := f.templates[id]
	if !ok {
		return domain.Template{}, apperr.NotFound("commission template not found")
	}
	return tpl, nil
}

func (f *fakeStore) ResolveByCode(_ context.Context, tenantID uuid.UUID, code string) (domain.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var global *domain.Template
	for _, tpl := range f.templates {
		if tpl.Code != code {
			continue
		}
		if tpl.TenantID != nil && *tpl.TenantID == tenantID {
			return tpl, nil
		}
		if tpl.TenantID == nil {
			g := tpl
			global = &g
		}
	}
	if global != nil {
		return *global, nil
	}
	return domain.Template{}, apperr.NotFound("commission template not found")
}

func (f *fakeStore) ListTemplates(_ context.Context, tenantID uuid.UUID) ([]domain.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	shadowed := make(map[string]bool)
	var out []domain.Template
	for _, tpl := range f.templates {
		if tpl.TenantID != nil && *tpl.TenantID == tenantID {
			out = append(out, tpl)
			shadowed[tpl.Code] = true
		}
	}
	for _, tpl := range f.templates {
		if tpl.TenantID == nil && !shadowed[tpl.Code] {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateTemplate(_ context.Context, tpl domain.Template) (domain.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.templates {
		if existing.Code != tpl.Code {
			continue
		}
		bothGlobal := existing.TenantID == nil && tpl.TenantID == nil
		sameTenant := existing.TenantID != nil && tpl.TenantID != nil && *existing.TenantID == *tpl.TenantID
		if bothGlobal || sameTenant {
			return domain.Template{}, apperr.Conflict("a template with this code already exists")
		}
	}
	tpl.ID = uuid.New()
	f.templates[tpl.ID] = tpl
	return tpl, nil
}

func (f *fakeStore) UpdateTenantTemplate(_ context.Context, tenantID uuid.UUID, tpl domain.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.templates[tpl.ID]
	if !ok || existing.TenantID == nil || *existing.TenantID != tenantID {
		return apperr.NotFound("commission template not found")
	}
	f.templates[tpl.ID] = tpl
	return nil
}

func (f *fakeStore) DeleteTenantTemplate(_ context.Context, tenantID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.templates[id]
	if !ok || existing.TenantID == nil || *existing.TenantID != tenantID {
		return apperr.NotFound("commission template not found")
	}
	delete(f.templates, id)
	return nil
}

func (f *fakeStore) GetDefaultTemplate(_ context.Context, tenantID uuid.UUID) (domain.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var global *domain.Template
	for _, tpl := range f.templates {
		if !tpl.IsDefault {
			continue
		}
		if tpl.TenantID != nil && *tpl.TenantID == tenantID {
			return tpl, nil
		}
		if tpl.TenantID == nil {
			g := tpl
			global = &g
		}
	}
	if global != nil {
		return *global, nil
	}
	return domain.Template{}, apperr.NotFound("no default commission template configured")
}

func (f *fakeStore) AssignAgentTemplate(_ context.Context, tenantID, agentID, templateID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments[assignKey{tenantID, agentID}] = templateID
	return nil
}

func (f *fakeStore) GetAgentTemplateID(_ context.Context, tenantID, agentID uuid.UUID) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.assignments[assignKey{tenantID, agentID}]
	return id, ok, nil
}

func (f *fakeStore) InsertRowsTx(_ context.Context, _ pgx.Tx, rows []domain.LedgerRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lr := range rows {
		lr.ID = uuid.New()
		lr.CreatedAt = time.Now()
		f.rows[lr.SaleID] = append(f.rows[lr.SaleID], lr)
	}
	return nil
}

func (f *fakeStore) InsertCollectionTx(_ context.Context, _ pgx.Tx, sc domain.SaleCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.collections[sc.SaleID]; exists {
		return apperr.Conflict("commission ledger already exists for this sale")
	}
	f.collections[sc.SaleID] = sc
	return nil
}

func (f *fakeStore) ListBySale(_ context.Context, _, saleID uuid.UUID) ([]domain.LedgerRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LedgerRow{}, f.rows[saleID]...), nil
}

func (f *fakeStore) GetCollection(_ context.Context, _, saleID uuid.UUID) (domain.SaleCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.collections[saleID]
	if !ok {
		return domain.SaleCollection{}, apperr.NotFound("sale not found in commission ledger")
	}
	return sc, nil
}

func (f *fakeStore) ListAdjustments(_ context.Context, commissionID uuid.UUID) ([]domain.Adjustment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adjustments[commissionID], nil
}

func (f *fakeStore) UpdateSaleLocked(_ context.Context, _, saleID uuid.UUID,
	fn func(domain.SaleCollection, []domain.LedgerRow) (domain.SaleCollection, []repository.RowUpdate, []domain.Adjustment, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.collections[saleID]
	if !ok {
		return apperr.NotFound("sale not found in commission ledger")
	}
	next, updates, adjustments, err := fn(sc, f.rows[saleID])
	if err != nil {
		return err
	}
	f.collections[saleID] = next
	for _, u := range updates {
		for i := range f.rows[saleID] {
			if f.rows[saleID][i].ID == u.RowID {
				f.rows[saleID][i].EnabledAmountCents = u.NewEnabledCents
			}
		}
	}
	for _, a := range adjustments {
		f.adjustments[a.CommissionID] = append(f.adjustments[a.CommissionID], a)
	}
	return nil
}

type fakePhases struct {
	mu     sync.Mutex
	states map[assignKey]phasesdomain.AgentPhaseState
}

func newFakePhases() *fakePhases {
	return &fakePhases{states: make(map[assignKey]phasesdomain.AgentPhaseState)}
}

func (f *fakePhases) BeginTx(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (f *fakePhases) GetStateForUpdate(_ context.Context, _ pgx.Tx, tenantID, agentID uuid.UUID) (phasesdomain.AgentPhaseState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[assignKey{tenantID, agentID}]
	if !ok {
		return phasesdomain.AgentPhaseState{}, apperr.NotFound("agent not found in phase system")
	}
	return state, nil
}

func (f *fakePhases) SaveStateTx(_ context.Context, _ pgx.Tx, state phasesdomain.AgentPhaseState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[assignKey{state.TenantID, state.AgentID}] = state
	return nil
}

func (f *fakePhases) InsertTransitionsTx(context.Context, pgx.Tx, uuid.UUID, uuid.UUID, time.Time, []phasesdomain.Transition) error {
	return nil
}

type nopPublisher struct{}

func (nopPublisher) PublishTransitions(context.Context, uuid.UUID, uuid.UUID, []phasesdomain.Transition) {
}

type nopBus struct{}

func (nopBus) Publish(context.Context, events.Event)           {}
func (nopBus) PublishSync(context.Context, events.Event) error { return nil }
func (nopBus) Subscribe(string, events.Handler)                {}

func globalTemplate() domain.Template {
	return domain.Template{
		Code: "standard",
		Name: "Standard",
		Distributions: map[domain.PropertyKind]map[domain.Scenario]domain.Split{
			domain.PropertyStandalone: {
				domain.ScenarioCaptureAndSell: {CaptorPct: 40, SellerPct: 40, CompanyPct: 20},
				domain.ScenarioSellOnly:       {CaptorPct: 0, SellerPct: 50, CompanyPct: 50},
			},
		},
		IsDefault: true,
	}
}

func newTestService() (*Service, *fakeStore, *fakePhases) {
	store := newFakeStore()
	phases := newFakePhases()
	svc := NewService(store, phases, nopPublisher{}, nopBus{}, logger.New("development"))
	return svc, store, phases
}

func seedGlobal(t *testing.T, store *fakeStore) domain.Template {
	t.Helper()
	tpl, err := store.CreateTemplate(context.Background(), globalTemplate())
	if err != nil {
		t.Fatalf("seed global: %v", err)
	}
	return tpl
}

func TestUpdateGlobalTemplateCopiesOnWrite(t *testing.T) {
	svc, store, _ := newTestService()
	global := seedGlobal(t, store)
	tenantA, tenantB := uuid.New(), uuid.New()

	name := "Tenant A custom"
	shadow, err := svc.UpdateTemplate(context.Background(), tenantA, global.ID, TemplatePatch{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if shadow.ID == global.ID {
		t.Fatal("expected a new tenant-scoped row, not a mutation of the global one")
	}
	if shadow.TenantID == nil || *shadow.TenantID != tenantA {
		t.Fatalf("expected tenant-scoped copy, got %+v", shadow.TenantID)
	}

	// The global row is untouched and tenant B still resolves to it.
	unchanged, err := svc.GetTemplate(context.Background(), tenantB, global.ID)
	if err != nil {
		t.Fatalf("get global: %v", err)
	}
	if unchanged.Name != "Standard" {
		t.Fatalf("global template mutated: %q", unchanged.Name)
	}

	forB, err := svc.Resolve(context.Background(), tenantB, "standard")
	if err != nil {
		t.Fatalf("resolve for B: %v", err)
	}
	if forB.ID != global.ID {
		t.Fatal("tenant B must keep resolving the global template")
	}

	// Tenant A permanently resolves to its copy.
	forA, err := svc.Resolve(context.Background(), tenantA, "standard")
	if err != nil {
		t.Fatalf("resolve for A: %v", err)
	}
	if forA.ID != shadow.ID {
		t.Fatal("tenant A must resolve its shadowing copy")
	}
}

func TestUpdateTenantTemplateMutatesInPlace(t *testing.T) {
	svc, store, _ := newTestService()
	seedGlobal(t, store)
	tenantID := uuid.New()

	own, err := svc.CreateTemplate(context.Background(), tenantID, globalTemplate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Renamed"
	updated, err := svc.UpdateTemplate(context.Background(), tenantID, own.ID, TemplatePatch{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != own.ID {
		t.Fatal("tenant-owned rows update in place")
	}
	if updated.Name != "Renamed" {
		t.Fatalf("expected rename, got %q", updated.Name)
	}
}

func TestResolveForAgentFallbackChain(t *testing.T) {
	svc, store, _ := newTestService()
	global := seedGlobal(t, store)
	tenantID, agentID := uuid.New(), uuid.New()

	// No assignment, no tenant default: global default wins.
	tpl, err := svc.ResolveForAgent(context.Background(), tenantID, agentID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tpl.ID != global.ID {
		t.Fatal("expected global default")
	}

	// Tenant default beats the global one.
	tenantDefault := globalTemplate()
	tenantDefault.Code = "tenant-default"
	created, err := svc.CreateTemplate(context.Background(), tenantID, tenantDefault)
	if err != nil {
		t.Fatalf("create tenant default: %v", err)
	}
	tpl, err = svc.ResolveForAgent(context.Background(), tenantID, agentID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tpl.ID != created.ID {
		t.Fatal("expected tenant default")
	}

	// Explicit assignment beats both.
	special := globalTemplate()
	special.Code = "special"
	special.IsDefault = false
	assigned, err := svc.CreateTemplate(context.Background(), tenantID, special)
	if err != nil {
		t.Fatalf("create special: %v", err)
	}
	if err := svc.AssignTemplate(context.Background(), tenantID, agentID, assigned.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	tpl, err = svc.ResolveForAgent(context.Background(), tenantID, agentID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tpl.ID != assigned.ID {
		t.Fatal("expected assigned template")
	}
}

func TestResolveForAgentMissingDefaultIsAnError(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.ResolveForAgent(context.Background(), uuid.New(), uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func closeTestSale(t *testing.T, svc *Service, phases *fakePhases, tenantID uuid.UUID) (uuid.UUID, []domain.LedgerRow) {
	t.Helper()
	sellerID := uuid.New()
	phases.states[assignKey{tenantID, sellerID}] = phasesdomain.AgentPhaseState{
		TenantID: tenantID, AgentID: sellerID, InSystem: true, Phase: 2, TrackedMonth: "2026-08",
	}

	saleID := uuid.New()
	rows, err := svc.CloseSale(context.Background(), SaleClose{
		SaleID:               saleID,
		TenantID:             tenantID,
		SellerID:             sellerID,
		PropertyKind:         domain.PropertyStandalone,
		Scenario:             domain.ScenarioCaptureAndSell,
		GrossCommissionCents: 1_000_000,
		OccurredAt:           time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("close sale: %v", err)
	}

	if got := phases.states[assignKey{tenantID, sellerID}]; got.Phase != 3 {
		t.Fatalf("expected seller advanced to phase 3, got %d", got.Phase)
	}
	return saleID, rows
}

func TestCloseSaleWritesSnapshotLedger(t *testing.T) {
	svc, store, phases := newTestService()
	seedGlobal(t, store)
	tenantID := uuid.New()

	saleID, rows := closeTestSale(t, svc, phases, tenantID)

	byType := make(map[domain.ParticipantType]domain.LedgerRow)
	for _, lr := range rows {
		byType[lr.ParticipantType] = lr
	}
	if byType[domain.ParticipantCaptor].GrossAmountCents != 400_000 ||
		byType[domain.ParticipantSeller].GrossAmountCents != 400_000 ||
		byType[domain.ParticipantCompany].GrossAmountCents != 200_000 {
		t.Fatalf("unexpected split amounts: %+v", rows)
	}
	for _, lr := range rows {
		if lr.EnabledAmountCents != 0 {
			t.Fatal("new ledger rows start with zero enabled amount")
		}
		if lr.Snapshot.GrossCents != 1_000_000 {
			t.Fatal("snapshot must capture the computation")
		}
	}

	// A second close of the same sale is rejected.
	sellerID := *byType[domain.ParticipantSeller].ParticipantID
	_, err := svc.CloseSale(context.Background(), SaleClose{
		SaleID:               saleID,
		TenantID:             tenantID,
		SellerID:             sellerID,
		PropertyKind:         domain.PropertyStandalone,
		Scenario:             domain.ScenarioCaptureAndSell,
		GrossCommissionCents: 1_000_000,
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on duplicate close, got %v", err)
	}
}

func TestRecordCollectionEnablesProportionally(t *testing.T) {
	svc, store, phases := newTestService()
	seedGlobal(t, store)
	tenantID := uuid.New()
	saleID, _ := closeTestSale(t, svc, phases, tenantID)

	// Half collected: each row enables half its gross.
	rows, err := svc.RecordCollection(context.Background(), tenantID, saleID, 500_000, false, "first payment")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	for _, lr := range rows {
		if lr.EnabledAmountCents != lr.GrossAmountCents/2 {
			t.Fatalf("expected half enabled, got %d of %d", lr.EnabledAmountCents, lr.GrossAmountCents)
		}
	}

	// Same collected-to-date again: idempotent, no new adjustments.
	before, _ := store.ListAdjustments(context.Background(), rows[0].ID)
	if _, err := svc.RecordCollection(context.Background(), tenantID, saleID, 500_000, false, "repeat"); err != nil {
		t.Fatalf("repeat: %v", err)
	}
	after, _ := store.ListAdjustments(context.Background(), rows[0].ID)
	if len(after) != len(before) {
		t.Fatal("repeating the same collection must not add adjustments")
	}

	// Decrease without clawback is rejected.
	if _, err := svc.RecordCollection(context.Background(), tenantID, saleID, 300_000, false, ""); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// Explicit clawback decreases and audits it.
	rows, err = svc.RecordCollection(context.Background(), tenantID, saleID, 300_000, true, "buyer refund")
	if err != nil {
		t.Fatalf("clawback: %v", err)
	}
	for _, lr := range rows {
		expected := domain.EnabledAmount(lr.GrossAmountCents, 300_000, 1_000_000)
		if lr.EnabledAmountCents != expected {
			t.Fatalf("expected %d enabled, got %d", expected, lr.EnabledAmountCents)
		}
	}
	adjustments, _ := store.ListAdjustments(context.Background(), rows[0].ID)
	last := adjustments[len(adjustments)-1]
	if last.Kind != domain.AdjustmentClawback || last.Reason != "buyer refund" {
		t.Fatalf("expected audited clawback, got %+v", last)
	}
}

func TestRecordCollectionOvercollectionCaps(t *testing.T) {
	svc, store, phases := newTestService()
	seedGlobal(t, store)
	tenantID := uuid.New()
	saleID, _ := closeTestSale(t, svc, phases, tenantID)

	rows, err := svc.RecordCollection(context.Background(), tenantID, saleID, 1_500_000, false, "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	for _, lr := range rows {
		if lr.EnabledAmountCents != lr.GrossAmountCents {
			t.Fatal("overcollection must cap at the snapshot amount")
		}
	}
}
