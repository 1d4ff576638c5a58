package state

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"agrichain/native/escrow"
	"agrichain/native/poll"
	"agrichain/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

var (
	alice = [20]byte{0xA1}
	bob   = [20]byte{0xB0}
)

func credit(t *testing.T, m *Manager, holder [20]byte, amount uint64) {
	t.Helper()
	require.NoError(t, m.Update(func(txn *Txn) error { return txn.Credit(holder, amount) }))
}

func TestTransfer(t *testing.T) {
	m := newTestManager(t)
	credit(t, m, alice, 100)

	require.NoError(t, m.Update(func(txn *Txn) error { return txn.Transfer(alice, bob, 40) }))
	acc, err := m.Account(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(60), acc.Balance)
	acc, err = m.Account(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(40), acc.Balance)

	err = m.Update(func(txn *Txn) error { return txn.Transfer(bob, alice, 41) })
	require.ErrorIs(t, err, escrow.ErrInsufficientFunds)

	require.NoError(t, m.Update(func(txn *Txn) error { return txn.Transfer(alice, alice, 60) }))
	err = m.Update(func(txn *Txn) error { return txn.Transfer(alice, alice, 61) })
	require.ErrorIs(t, err, escrow.ErrInsufficientFunds)

	supply, err := m.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, uint64(100), supply)
}

func TestCreditOverflow(t *testing.T) {
	m := newTestManager(t)
	credit(t, m, alice, math.MaxUint64)
	err := m.Update(func(txn *Txn) error { return txn.Credit(bob, 1) })
	require.ErrorIs(t, err, escrow.ErrBalanceOverflow)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	m := newTestManager(t)
	credit(t, m, alice, 100)
	boom := errors.New("boom")

	err := m.Update(func(txn *Txn) error {
		require.NoError(t, txn.Transfer(alice, bob, 70))
		balance, err := txn.Balance(bob)
		require.NoError(t, err)
		require.Equal(t, uint64(70), balance)
		return boom
	})
	require.ErrorIs(t, err, boom)

	acc, err := m.Account(bob)
	require.NoError(t, err)
	require.Zero(t, acc.Balance)
	acc, err = m.Account(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(100), acc.Balance)
}

func TestViewDropsWrites(t *testing.T) {
	m := newTestManager(t)
	credit(t, m, alice, 10)
	require.NoError(t, m.View(func(txn *Txn) error { return txn.Transfer(alice, bob, 10) }))
	acc, err := m.Account(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(10), acc.Balance)
}

func TestKV(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Update(func(txn *Txn) error { return txn.KVPut([]byte("marker"), uint64(7)) }))
	require.NoError(t, m.View(func(txn *Txn) error {
		var out uint64
		ok, err := txn.KVGet([]byte("marker"), &out)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(7), out)
		ok, err = txn.KVGet([]byte("absent"), &out)
		require.NoError(t, err)
		require.False(t, ok)
		_, err = txn.KVGet(nil, &out)
		require.Error(t, err)
		return nil
	}))
}

func TestEscrowRecordStorage(t *testing.T) {
	m := newTestManager(t)
	key := escrow.DeriveKey(alice, bob, "teff 50kg")
	rec := &escrow.Record{
		Key:          key,
		Buyer:        alice,
		Seller:       bob,
		OrderDetails: "teff 50kg",
		Amount:       10,
		Funded:       10,
		Status:       escrow.StatusInitialized,
		CreatedAt:    1_700_000_000,
		UpdatedAt:    1_700_000_000,
	}
	require.NoError(t, m.Update(func(txn *Txn) error { return txn.CreateRecord(rec) }))
	err := m.Update(func(txn *Txn) error { return txn.CreateRecord(rec) })
	require.ErrorIs(t, err, escrow.ErrDuplicateKey)

	require.NoError(t, m.View(func(txn *Txn) error {
		loaded, err := txn.LoadRecord(key)
		require.NoError(t, err)
		require.Equal(t, rec, loaded)
		return nil
	}))

	bad := rec.Clone()
	bad.Status = escrow.StatusCompleted
	err = m.Update(func(txn *Txn) error { return txn.StoreRecord(bad) })
	require.Error(t, err)

	require.NoError(t, m.Update(func(txn *Txn) error { return txn.DestroyRecord(key) }))
	require.NoError(t, m.View(func(txn *Txn) error {
		_, err := txn.LoadRecord(key)
		require.ErrorIs(t, err, escrow.ErrNotFound)
		return nil
	}))
}

func TestEscrowEngineOnLevelDB(t *testing.T) {
	db, err := storage.NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	m := NewManager(db)
	credit(t, m, alice, 1_000)

	engine, err := escrow.NewEngine(escrow.Config{MaxOrderDetailsLen: escrow.ProfileExtended, Reserve: 2})
	require.NoError(t, err)
	engine.SetState(m.EscrowBackend())

	rec, err := engine.Initialize(alice, escrow.InitializeParams{Seller: bob, OrderDetails: "coffee", Amount: 300})
	require.NoError(t, err)
	custody, err := engine.CustodyBalance(rec.Key)
	require.NoError(t, err)
	require.Equal(t, uint64(302), custody)

	_, err = engine.Confirm(rec.Key, bob)
	require.NoError(t, err)
	_, err = engine.Withdraw(rec.Key, bob)
	require.NoError(t, err)
	residual, err := engine.Close(rec.Key, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(2), residual)

	aliceAcc, err := m.Account(alice)
	require.NoError(t, err)
	bobAcc, err := m.Account(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(700), aliceAcc.Balance)
	require.Equal(t, uint64(300), bobAcc.Balance)

	supply, err := m.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, supply, aliceAcc.Balance+bobAcc.Balance)
}

func TestEscrowFailedInitializeLeavesNothing(t *testing.T) {
	m := newTestManager(t)
	credit(t, m, alice, 5)
	engine, err := escrow.NewEngine(escrow.DefaultConfig())
	require.NoError(t, err)
	engine.SetState(m.EscrowBackend())

	_, err = engine.Initialize(alice, escrow.InitializeParams{Seller: bob, OrderDetails: "x", Amount: 6})
	require.ErrorIs(t, err, escrow.ErrInsufficientFunds)
	_, err = engine.Get(escrow.DeriveKey(alice, bob, "x"))
	require.ErrorIs(t, err, escrow.ErrNotFound)
}

func TestPollStorage(t *testing.T) {
	m := newTestManager(t)
	engine := poll.NewEngine()
	engine.SetState(m.PollBackend())

	_, err := engine.InitializePoll(alice, poll.InitializeParams{ID: 3, Description: "harvest festival date", Start: 1, End: 9})
	require.NoError(t, err)
	_, err = engine.InitializePoll(alice, poll.InitializeParams{ID: 3})
	require.ErrorIs(t, err, poll.ErrPollExists)

	_, err = engine.InitCandidate(3, "june")
	require.NoError(t, err)
	_, err = engine.InitCandidate(3, "june")
	require.ErrorIs(t, err, poll.ErrCandidateExists)
	_, err = engine.Vote(3, "june")
	require.NoError(t, err)

	p, err := engine.Poll(3)
	require.NoError(t, err)
	require.Equal(t, "harvest festival date", p.Description)
	require.Equal(t, uint64(1), p.CandidateCount)
	require.Equal(t, alice, p.Creator)

	candidates, err := engine.Candidates(3)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, uint64(1), candidates[0].Votes)

	_, err = engine.Poll(4)
	require.ErrorIs(t, err, poll.ErrPollNotFound)
}
