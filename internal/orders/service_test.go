package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/audit"
	"oficina-backend/internal/database/dbtest"
	"oficina-backend/internal/models"
	"oficina-backend/internal/pagination"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var actor = audit.Actor{UserID: 1, UserName: "Admin"}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) OrderEvent(event string, _ decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func newTestService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewService(dbtest.Open(t), 5*time.Second, rec), rec
}

func seedPart(t *testing.T, db *gorm.DB, name, salePrice string, qty int) *models.Part {
	t.Helper()
	p := models.Part{
		Name:          name,
		PurchasePrice: decimal.RequireFromString(salePrice).Div(decimal.NewFromInt(2)),
		SalePrice:     decimal.RequireFromString(salePrice),
		Quantity:      qty,
	}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

func quantityOf(t *testing.T, db *gorm.DB, id uint) int {
	t.Helper()
	var p models.Part
	require.NoError(t, db.First(&p, id).Error)
	return p.Quantity
}

func count[T any](t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(new(T)).Count(&n).Error)
	return n
}

func input(labor string, items ...LineItemInput) OrderInput {
	return OrderInput{
		ClientName:   gofakeit.Name(),
		VehicleModel: gofakeit.CarModel(),
		VehicleYear:  "2018",
		VehiclePlate: "ABC1D23",
		ServiceType:  "Revisão",
		Description:  gofakeit.Sentence(6),
		Labor:        decimal.RequireFromString(labor),
		Items:        items,
	}
}

// totais da ordem persistida conferem com os itens persistidos
func assertTotals(t *testing.T, db *gorm.DB, orderID uint) models.ServiceOrder {
	t.Helper()
	var order models.ServiceOrder
	require.NoError(t, db.Preload("Items").First(&order, orderID).Error)

	sum := decimal.Zero
	for _, it := range order.Items {
		sum = sum.Add(it.Total)
	}
	assert.True(t, order.PartsTotal.Equal(sum), "parts_total %s != soma dos itens %s", order.PartsTotal, sum)
	assert.True(t, order.Total.Equal(order.PartsTotal.Add(order.LaborTotal)), "total %s", order.Total)
	return order
}

func TestCreate_ConsumesStock(t *testing.T) {
	svc, rec := newTestService(t)
	p := seedPart(t, svc.db, "Filtro de óleo", "5.00", 10)

	order, err := svc.Create(context.Background(), actor, input("0", LineItemInput{PartID: p.ID, Quantity: 4}))
	require.NoError(t, err)

	assert.Equal(t, 6, quantityOf(t, svc.db, p.ID))
	assert.Equal(t, "20.00", order.PartsTotal.StringFixed(2))
	assert.Equal(t, models.OrderStatusOpen, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "5.00", order.Items[0].UnitPrice.StringFixed(2))

	stored := assertTotals(t, svc.db, order.ID)
	assert.Equal(t, "20.00", stored.Total.StringFixed(2))
	assert.Equal(t, []string{EventCreated}, rec.events)
}

func TestCreate_TotalsWithLabor(t *testing.T) {
	svc, _ := newTestService(t)
	a := seedPart(t, svc.db, "Pastilha", "75.50", 5)
	b := seedPart(t, svc.db, "Fluido", "32.90", 5)

	order, err := svc.Create(context.Background(), actor, input("120.00",
		LineItemInput{PartID: a.ID, Quantity: 2},
		LineItemInput{PartID: b.ID, Quantity: 1},
		LineItemInput{PartID: a.ID, Quantity: 1},
	))
	require.NoError(t, err)

	assert.Equal(t, "259.40", order.PartsTotal.StringFixed(2))
	assert.Equal(t, "379.40", order.Total.StringFixed(2))
	assert.Equal(t, 2, quantityOf(t, svc.db, a.ID))
	assert.Equal(t, 4, quantityOf(t, svc.db, b.ID))
	assertTotals(t, svc.db, order.ID)
}

func TestCreate_WithoutItems(t *testing.T) {
	svc, _ := newTestService(t)

	order, err := svc.Create(context.Background(), actor, input("80"))
	require.NoError(t, err)
	assert.True(t, order.PartsTotal.IsZero())
	assert.Equal(t, "80.00", order.Total.StringFixed(2))
	assertTotals(t, svc.db, order.ID)
}

func TestCreate_InsufficientStockRollsBack(t *testing.T) {
	svc, rec := newTestService(t)
	ok := seedPart(t, svc.db, "Vela", "20", 10)
	p := seedPart(t, svc.db, "Bobina", "5.00", 2)

	_, err := svc.Create(context.Background(), actor, input("50",
		LineItemInput{PartID: ok.ID, Quantity: 3},
		LineItemInput{PartID: p.ID, Quantity: 4},
	))
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	details := apperr.As(err).Details
	assert.Equal(t, p.ID, details["peca_id"])
	assert.Equal(t, "Bobina", details["peca_nome"])
	assert.Equal(t, 4, details["solicitado"])
	assert.Equal(t, 2, details["disponivel"])

	assert.Equal(t, 2, quantityOf(t, svc.db, p.ID))
	assert.Equal(t, 10, quantityOf(t, svc.db, ok.ID), "baixa da primeira peça também é desfeita")
	assert.Zero(t, count[models.ServiceOrder](t, svc.db))
	assert.Zero(t, count[models.OrderLineItem](t, svc.db))
	assert.Zero(t, count[models.AuditLog](t, svc.db))
	assert.Empty(t, rec.events)
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	p := seedPart(t, svc.db, "Correia", "10", 1)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*OrderInput)
		field  string
	}{
		{"client", func(in *OrderInput) { in.ClientName = "  " }, "cliente_nome"},
		{"model", func(in *OrderInput) { in.VehicleModel = "" }, "veiculo_modelo"},
		{"plate", func(in *OrderInput) { in.VehiclePlate = "" }, "veiculo_placa"},
		{"service", func(in *OrderInput) { in.ServiceType = "" }, "tipo_servico"},
		{"labor", func(in *OrderInput) { in.Labor = decimal.NewFromInt(-1) }, "valor_mao_obra"},
		{"quantity", func(in *OrderInput) { in.Items = []LineItemInput{{PartID: p.ID, Quantity: 0}} }, "pecas[0].quantidade"},
		{"part id", func(in *OrderInput) { in.Items = []LineItemInput{{Quantity: 1}} }, "pecas[0].peca_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := input("10")
			tt.mutate(&in)
			_, err := svc.Create(ctx, actor, in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, tt.field, apperr.As(err).Field)
		})
	}

	_, err := svc.Create(ctx, actor, input("10", LineItemInput{PartID: 999, Quantity: 1}))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Zero(t, count[models.ServiceOrder](t, svc.db))
}

func TestCreate_DeleteRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	before := map[uint]int{}
	var items []LineItemInput
	for i := 0; i < 4; i++ {
		qty := gofakeit.IntRange(3, 20)
		p := seedPart(t, svc.db, gofakeit.UUID(), "9.99", qty)
		before[p.ID] = qty
		items = append(items, LineItemInput{PartID: p.ID, Quantity: gofakeit.IntRange(1, qty)})
	}

	order, err := svc.Create(ctx, actor, input("45", items...))
	require.NoError(t, err)
	for _, it := range items {
		assert.Equal(t, before[it.PartID]-it.Quantity, quantityOf(t, svc.db, it.PartID))
	}

	require.NoError(t, svc.Delete(ctx, actor, order.ID))
	for id, qty := range before {
		assert.Equal(t, qty, quantityOf(t, svc.db, id))
	}
	assert.Zero(t, count[models.ServiceOrder](t, svc.db))
	assert.Zero(t, count[models.OrderLineItem](t, svc.db))

	assert.ErrorIs(t, svc.Delete(ctx, actor, order.ID), apperr.ErrNotFound)
}

func TestUpdate_ReplacesItems(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := seedPart(t, svc.db, "A", "10", 5)
	b := seedPart(t, svc.db, "B", "4", 3)

	order, err := svc.Create(ctx, actor, input("30", LineItemInput{PartID: a.ID, Quantity: 5}))
	require.NoError(t, err)
	require.Equal(t, 0, quantityOf(t, svc.db, a.ID))

	// os 5 de A voltam ao estoque antes de validar os novos itens
	items := []LineItemInput{{PartID: a.ID, Quantity: 2}, {PartID: b.ID, Quantity: 3}}
	updated, err := svc.Update(ctx, actor, order.ID, OrderPatch{Items: &items})
	require.NoError(t, err)

	assert.Equal(t, 3, quantityOf(t, svc.db, a.ID))
	assert.Equal(t, 0, quantityOf(t, svc.db, b.ID))
	assert.Equal(t, "32.00", updated.PartsTotal.StringFixed(2))
	assert.Equal(t, "62.00", updated.Total.StringFixed(2))
	assert.Equal(t, order.ClientName, updated.ClientName)
	stored := assertTotals(t, svc.db, order.ID)
	assert.Len(t, stored.Items, 2)

	empty := []LineItemInput{}
	updated, err = svc.Update(ctx, actor, order.ID, OrderPatch{Items: &empty})
	require.NoError(t, err)
	assert.True(t, updated.PartsTotal.IsZero())
	assert.Equal(t, "30.00", updated.Total.StringFixed(2))
	assert.Equal(t, 5, quantityOf(t, svc.db, a.ID))
	assert.Equal(t, 3, quantityOf(t, svc.db, b.ID))
	assertTotals(t, svc.db, order.ID)
}

func TestUpdate_InsufficientStockRollsBack(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := seedPart(t, svc.db, "A", "10", 3)
	b := seedPart(t, svc.db, "B", "10", 1)

	order, err := svc.Create(ctx, actor, input("0", LineItemInput{PartID: a.ID, Quantity: 2}))
	require.NoError(t, err)

	client := "Outro cliente"
	items := []LineItemInput{{PartID: b.ID, Quantity: 2}}
	_, err = svc.Update(ctx, actor, order.ID, OrderPatch{ClientName: &client, Items: &items})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	assert.Equal(t, 1, quantityOf(t, svc.db, a.ID), "estorno dos itens antigos também é desfeito")
	assert.Equal(t, 1, quantityOf(t, svc.db, b.ID))
	stored := assertTotals(t, svc.db, order.ID)
	assert.Equal(t, order.ClientName, stored.ClientName)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, a.ID, stored.Items[0].PartID)
}

func TestUpdate_HeaderPresence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, actor, input("100"))
	require.NoError(t, err)

	empty := ""
	zero := decimal.Zero
	updated, err := svc.Update(ctx, actor, order.ID, OrderPatch{Description: &empty, VehicleYear: &empty, Labor: &zero})
	require.NoError(t, err)
	assert.Empty(t, updated.Description, "opcional presente e vazio sobrescreve")
	assert.Empty(t, updated.VehicleYear)
	assert.True(t, updated.Total.IsZero(), "mão de obra zero é um valor válido")
	assert.Equal(t, order.VehiclePlate, updated.VehiclePlate, "campos ausentes são mantidos")

	_, err = svc.Update(ctx, actor, order.ID, OrderPatch{ClientName: &empty})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "cliente_nome", apperr.As(err).Field)

	_, err = svc.Update(ctx, actor, order.ID, OrderPatch{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	plate := "XYZ9K87"
	_, err = svc.Update(ctx, actor, 4242, OrderPatch{VehiclePlate: &plate})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Update(ctx, actor, 4242, OrderPatch{})
	assert.ErrorIs(t, err, apperr.ErrNotFound, "ordem inexistente vem antes do patch vazio")
}

func TestUpdate_KeepsPriceSnapshot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := seedPart(t, svc.db, "Filtro de ar", "5.00", 10)

	order, err := svc.Create(ctx, actor, input("1", LineItemInput{PartID: p.ID, Quantity: 4}))
	require.NoError(t, err)

	require.NoError(t, svc.db.Model(&models.Part{}).Where("id = ?", p.ID).
		Update("sale_price", decimal.RequireFromString("9.00")).Error)

	labor := decimal.NewFromInt(1)
	_, err = svc.Update(ctx, actor, order.ID, OrderPatch{Labor: &labor})
	require.NoError(t, err)

	stored := assertTotals(t, svc.db, order.ID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "5.00", stored.Items[0].UnitPrice.StringFixed(2), "preço gravado não acompanha a peça")
	assert.Equal(t, "20.00", stored.PartsTotal.StringFixed(2))
	assert.Equal(t, "21.00", stored.Total.StringFixed(2))

	// substituir os itens grava o preço vigente
	items := []LineItemInput{{PartID: p.ID, Quantity: 4}}
	_, err = svc.Update(ctx, actor, order.ID, OrderPatch{Items: &items})
	require.NoError(t, err)

	stored = assertTotals(t, svc.db, order.ID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "9.00", stored.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "36.00", stored.PartsTotal.StringFixed(2))
	assert.Equal(t, "37.00", stored.Total.StringFixed(2))
	assert.Equal(t, 6, quantityOf(t, svc.db, p.ID))
}

func TestUpdate_FinalizedIsImmutable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := seedPart(t, svc.db, "A", "10", 5)

	order, err := svc.Create(ctx, actor, input("50", LineItemInput{PartID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	_, err = svc.Finalize(ctx, actor, order.ID)
	require.NoError(t, err)

	client := "Alterado"
	labor := decimal.NewFromInt(999)
	items := []LineItemInput{}
	_, err = svc.Update(ctx, actor, order.ID, OrderPatch{ClientName: &client, Labor: &labor, Items: &items})
	require.ErrorIs(t, err, apperr.ErrConflict)

	stored := assertTotals(t, svc.db, order.ID)
	assert.Equal(t, order.ClientName, stored.ClientName)
	assert.Equal(t, "60.00", stored.Total.StringFixed(2))
	assert.Len(t, stored.Items, 1)
	assert.Equal(t, 4, quantityOf(t, svc.db, p.ID))

	invalid := []LineItemInput{{PartID: p.ID, Quantity: 0}}
	_, err = svc.Update(ctx, actor, order.ID, OrderPatch{Items: &invalid})
	assert.ErrorIs(t, err, apperr.ErrConflict, "ordem finalizada vem antes da validação dos itens")

	_, err = svc.Update(ctx, actor, order.ID, OrderPatch{})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	assert.ErrorIs(t, svc.Delete(ctx, actor, order.ID), apperr.ErrConflict)
}

func TestFinalize_PostsCreditOnce(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	p := seedPart(t, svc.db, "Kit embreagem", "50.00", 4)

	order, err := svc.Create(ctx, actor, input("50.00", LineItemInput{PartID: p.ID, Quantity: 2}))
	require.NoError(t, err)
	require.Equal(t, "150.00", order.Total.StringFixed(2))

	finalized, err := svc.Finalize(ctx, actor, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFinalized, finalized.Status)
	require.NotNil(t, finalized.FinalizedAt)

	_, err = svc.Finalize(ctx, actor, order.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	var entries []models.LedgerEntry
	require.NoError(t, svc.db.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerCredit, entries[0].Kind)
	assert.Equal(t, "150.00", entries[0].Amount.StringFixed(2))
	assert.Equal(t, models.LedgerSourceOrder, entries[0].Source)
	require.NotNil(t, entries[0].OrderID)
	assert.Equal(t, order.ID, *entries[0].OrderID)
	assert.Contains(t, entries[0].Description, "#")

	var stored models.ServiceOrder
	require.NoError(t, svc.db.First(&stored, order.ID).Error)
	assert.True(t, stored.IsFinalized())
	assert.NotNil(t, stored.FinalizedAt)

	assert.Equal(t, []string{EventCreated, EventFinalized}, rec.events)

	_, err = svc.Finalize(ctx, actor, 31337)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFinalize_ZeroTotalHasNoEntry(t *testing.T) {
	svc, _ := newTestService(t)

	order, err := svc.Create(context.Background(), actor, input("0"))
	require.NoError(t, err)

	_, err = svc.Finalize(context.Background(), actor, order.ID)
	require.NoError(t, err)
	assert.Zero(t, count[models.LedgerEntry](t, svc.db))
}

func TestCreate_ConcurrentLastUnit(t *testing.T) {
	svc, _ := newTestService(t)
	p := seedPart(t, svc.db, "Última peça", "100", 1)

	const workers = 2
	errs := make([]error, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Create(context.Background(), actor, input("0", LineItemInput{PartID: p.ID, Quantity: 1}))
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.As(err) != nil && apperr.As(err).Kind == apperr.KindInsufficientStock:
			insufficient++
		default:
			t.Fatalf("erro inesperado: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 0, quantityOf(t, svc.db, p.ID))
	assert.Equal(t, int64(1), count[models.ServiceOrder](t, svc.db))
}

func TestGetAndList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := seedPart(t, svc.db, "Amortecedor", "200", 10)

	in := input("100", LineItemInput{PartID: p.ID, Quantity: 2})
	in.ClientName = "Maria Souza"
	in.VehiclePlate = "MSZ4E21"
	first, err := svc.Create(ctx, actor, in)
	require.NoError(t, err)

	other := input("10")
	other.ClientName = "João Lima"
	other.VehiclePlate = "JLM1B00"
	second, err := svc.Create(ctx, actor, other)
	require.NoError(t, err)
	_, err = svc.Finalize(ctx, actor, second.ID)
	require.NoError(t, err)

	detail, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, "Amortecedor", detail.Items[0].PartName)
	assert.Equal(t, "400.00", detail.Items[0].Total.StringFixed(2))

	_, err = svc.Get(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	orders, total, err := svc.List(ctx, OrderFilter{Client: "maria"}, pagination.New(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, first.ID, orders[0].ID)

	_, total, err = svc.List(ctx, OrderFilter{Plate: "jlm"}, pagination.New(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	finalized := models.OrderStatusFinalized
	orders, total, err = svc.List(ctx, OrderFilter{Status: &finalized}, pagination.New(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, second.ID, orders[0].ID)

	orders, total, err = svc.List(ctx, OrderFilter{}, pagination.New(1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, orders, 1)
	assert.Equal(t, second.ID, orders[0].ID, "mais recentes primeiro")

	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	_, total, err = svc.List(ctx, OrderFilter{From: &tomorrow}, pagination.New(1, 10))
	require.NoError(t, err)
	assert.Zero(t, total)
}
