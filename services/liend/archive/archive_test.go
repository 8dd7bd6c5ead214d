package archive

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lienledger/core/events"
	"lienledger/core/types"
	"lienledger/native/lien"
	"lienledger/rpc/modules"
)

type busEvent struct{ evt *types.Event }

func (e busEvent) EventType() string { return e.evt.Type }
func (e busEvent) Event() *types.Event { return e.evt }

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	archive, err := New(db, nil)
	require.NoError(t, err)
	archive.nowFn = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return archive
}

func TestArchiveRecordsBusEvents(t *testing.T) {
	archive := newTestArchive(t)
	bus := events.NewBus()
	unsubscribe := archive.Subscribe(bus)
	defer unsubscribe()

	first := common.HexToHash("0x01")
	second := common.HexToHash("0x02")
	payer := common.HexToAddress("0xb000000000000000000000000000000000000001")
	payee := common.HexToAddress("0xb000000000000000000000000000000000000002")

	bus.Emit(busEvent{lien.NewPaymentEvent(first, big.NewInt(16), payer, payee, big.NewInt(15), nil)})
	bus.Emit(busEvent{lien.NewPayeeChangedEvent(second, payee)})
	bus.Emit(busEvent{lien.NewPaymentEvent(second, big.NewInt(17), payer, payee, big.NewInt(5), nil)})

	all, err := archive.ListEvents(context.Background(), modules.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, lien.EventTypeLienPayment, all[0].Type)
	require.Equal(t, "5", all[0].Attributes["amount"])
	require.Greater(t, all[0].Sequence, all[2].Sequence, "newest first")
	require.Equal(t, time.Unix(1_700_000_000, 0).UTC(), all[0].CreatedAt.UTC())

	byLien, err := archive.ListEvents(context.Background(), modules.EventFilter{LienID: second.Hex()})
	require.NoError(t, err)
	require.Len(t, byLien, 2)

	byCollateral, err := archive.ListEvents(context.Background(), modules.EventFilter{CollateralID: "16"})
	require.NoError(t, err)
	require.Len(t, byCollateral, 1)
	require.Equal(t, first.Hex(), byCollateral[0].Attributes["lienId"])

	byType, err := archive.ListEvents(context.Background(), modules.EventFilter{Type: lien.EventTypeLienPayeeChanged})
	require.NoError(t, err)
	require.Len(t, byType, 1)

	limited, err := archive.ListEvents(context.Background(), modules.EventFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, all[0].Sequence, limited[0].Sequence)
}

func TestArchiveIgnoresNilEvents(t *testing.T) {
	archive := newTestArchive(t)
	require.NoError(t, archive.Record(context.Background(), nil))
	require.NoError(t, archive.Record(context.Background(), &types.Event{Type: "lien.file"}))

	records, err := archive.ListEvents(context.Background(), modules.EventFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Empty(t, records[0].Attributes)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
}
