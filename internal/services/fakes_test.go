package services

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/chain"
	"github.com/likefeed/backend/internal/config"
	"github.com/likefeed/backend/internal/events"
	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/repositories"
	"github.com/likefeed/backend/internal/secret"
)

type memWallets struct {
	mu      sync.Mutex
	wallets map[string]secret.SigningKey
}

func newMemWallets() *memWallets {
	return &memWallets{wallets: make(map[string]secret.SigningKey)}
}

func (m *memWallets) Upsert(_ context.Context, address string, key secret.SigningKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.wallets[address]
	m.wallets[address] = key
	return existed, nil
}

func (m *memWallets) GetByAddress(_ context.Context, address string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.wallets[address]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &models.Wallet{Address: address, SigningKey: k}, nil
}

func (m *memWallets) Exists(_ context.Context, address string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.wallets[address]
	return ok, nil
}

type memContent struct {
	mu       sync.Mutex
	nextID   int64
	posts    map[int64]*models.Post
	comments map[int64]*models.Comment
}

func newMemContent() *memContent {
	return &memContent{
		posts:    make(map[int64]*models.Post),
		comments: make(map[int64]*models.Comment),
	}
}

func (m *memContent) CreatePost(_ context.Context, p *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.posts[p.ID] = &cp
	return nil
}

// putPost stores a post under a fixed id.
func (m *memContent) putPost(p models.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = &p
	if p.ID > m.nextID {
		m.nextID = p.ID
	}
}

func (m *memContent) CreateComment(_ context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[c.PostID]; !ok {
		return repositories.ErrNotFound
	}
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.comments[c.ID] = &cp
	return nil
}

func (m *memContent) Get(_ context.Context, ref models.ContentRef) (*models.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ref.Type {
	case models.ContentPost:
		if p, ok := m.posts[ref.ID]; ok {
			return &models.Content{Ref: ref, AuthorAddress: p.AuthorAddress, LikeCount: p.LikeCount}, nil
		}
	case models.ContentComment:
		if c, ok := m.comments[ref.ID]; ok {
			return &models.Content{Ref: ref, AuthorAddress: c.AuthorAddress, LikeCount: c.LikeCount}, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memContent) increment(ref models.ContentRef) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ref.Type {
	case models.ContentPost:
		if p, ok := m.posts[ref.ID]; ok {
			p.LikeCount++
			return p.LikeCount, nil
		}
	case models.ContentComment:
		if c, ok := m.comments[ref.ID]; ok {
			c.LikeCount++
			return c.LikeCount, nil
		}
	}
	return 0, repositories.ErrNotFound
}

func (m *memContent) likes(ref models.ContentRef) int64 {
	c, err := m.Get(context.Background(), ref)
	if err != nil {
		return -1
	}
	return c.LikeCount
}

func (m *memContent) ListPosts(_ context.Context, limit, offset int) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Post{}
	for _, p := range m.posts {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memContent) ListComments(_ context.Context, postID *int64, limit, offset int) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Comment{}
	for _, c := range m.comments {
		if postID == nil || c.PostID == *postID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type memLedger struct {
	mu       sync.Mutex
	content  *memContent
	attempts map[uuid.UUID]*models.RewardAttempt
	keys     map[string]bool

	settleErr error
}

func newMemLedger(content *memContent) *memLedger {
	return &memLedger{
		content:  content,
		attempts: make(map[uuid.UUID]*models.RewardAttempt),
		keys:     make(map[string]bool),
	}
}

func (l *memLedger) Begin(_ context.Context, a *models.RewardAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a.IdempotencyKey != nil {
		if l.keys[*a.IdempotencyKey] {
			return repositories.ErrDuplicate
		}
		l.keys[*a.IdempotencyKey] = true
	}
	a.ID = uuid.New()
	a.Status = models.AttemptStatusPending
	cp := *a
	l.attempts[a.ID] = &cp
	return nil
}

func (l *memLedger) move(id uuid.UUID, to string, mutate func(*models.RewardAttempt)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.attempts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if !models.IsValidAttemptTransition(a.Status, to) {
		return repositories.ErrStaleTransition
	}
	a.Status = to
	if mutate != nil {
		mutate(a)
	}
	return nil
}

func (l *memLedger) MarkSigned(_ context.Context, id uuid.UUID, txHash string, nonce uint64) error {
	return l.move(id, models.AttemptStatusSigned, func(a *models.RewardAttempt) {
		n := int64(nonce)
		a.TxHash, a.Nonce = &txHash, &n
	})
}

func (l *memLedger) MarkSubmitted(_ context.Context, id uuid.UUID) error {
	return l.move(id, models.AttemptStatusSubmitted, nil)
}

func (l *memLedger) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return l.move(id, models.AttemptStatusFailed, func(a *models.RewardAttempt) { a.Error = &reason })
}

func (l *memLedger) MarkUnknown(_ context.Context, id uuid.UUID, reason string) error {
	return l.move(id, models.AttemptStatusUnknown, func(a *models.RewardAttempt) { a.Error = &reason })
}

func (l *memLedger) Settle(_ context.Context, id uuid.UUID) (int64, error) {
	if l.settleErr != nil {
		return 0, l.settleErr
	}
	l.mu.Lock()
	a, ok := l.attempts[id]
	if !ok || a.Status != models.AttemptStatusSubmitted {
		l.mu.Unlock()
		return 0, repositories.ErrStaleTransition
	}
	a.Status = models.AttemptStatusCounted
	ref := a.Ref()
	l.mu.Unlock()
	return l.content.increment(ref)
}

func (l *memLedger) statuses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, a := range l.attempts {
		out = append(out, a.Status)
	}
	return out
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (m *memAudit) Log(_ context.Context, e models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *memPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *memPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeTransfers stands in for the chain client. Balances are not modelled;
// prepareErr and submitErr inject failures.
type fakeTransfers struct {
	mu         sync.Mutex
	prepareErr error
	submitErr  error
	gasGuessed bool
	nonce      uint64
	prepared   int
	broadcast  []*types.Transaction
}

func (f *fakeTransfers) Prepare(_ context.Context, key secret.SigningKey, req chain.TransferRequest) (*chain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared++
	if f.prepareErr != nil {
		return nil, f.prepareErr
	}
	from, err := chain.AddressOf(key)
	if err != nil {
		return nil, err
	}
	amount, err := chain.ToBaseUnits(req.Amount, 18)
	if err != nil {
		return nil, err
	}
	return &chain.Quote{
		From:         from,
		To:           req.To,
		Amount:       amount,
		Decimals:     18,
		GasPrice:     big.NewInt(1),
		GasLimit:     chain.TokenTransferGasFallback,
		GasEstimated: !f.gasGuessed,
	}, nil
}

func (f *fakeTransfers) Submit(_ context.Context, _ secret.SigningKey, q *chain.Quote, hook func(*types.Transaction) error) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	to := q.To
	tx := types.NewTx(&types.LegacyTx{Nonce: f.nonce, To: &to, Value: q.Amount, Gas: q.GasLimit, GasPrice: q.GasPrice})
	if hook != nil {
		if err := hook(tx); err != nil {
			return common.Hash{}, err
		}
	}
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	f.nonce++
	f.broadcast = append(f.broadcast, tx)
	return tx.Hash(), nil
}

func (f *fakeTransfers) broadcastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.broadcast)
}

type account struct {
	key  secret.SigningKey
	hex  string
	addr string
}

func newAccount(t *testing.T) account {
	t.Helper()
	priv, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	raw := gethcrypto.FromECDSA(priv)
	return account{
		key:  secret.SigningKeyFromBytes(raw),
		hex:  common.Bytes2Hex(raw),
		addr: gethcrypto.PubkeyToAddress(priv.PublicKey).Hex(),
	}
}

type harness struct {
	cfg        *config.Config
	wallets    *memWallets
	content    *memContent
	ledger     *memLedger
	audit      *memAudit
	publisher  *memPublisher
	transfers  *fakeTransfers
	walletSvc  *WalletService
	contentSvc *ContentService
	settlement *SettlementService
	treasury   account
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		wallets:   newMemWallets(),
		content:   newMemContent(),
		audit:     &memAudit{},
		publisher: &memPublisher{},
		transfers: &fakeTransfers{},
		treasury:  newAccount(t),
	}
	h.ledger = newMemLedger(h.content)
	h.cfg = &config.Config{
		RewardPayer:            config.PayerTreasury,
		RewardAmount:           "1",
		RequireRecipientWallet: true,
		TreasuryAddress:        h.treasury.addr,
		ExplorerTxURL:          "https://explorer.example/tx/%s",
	}
	log := zap.NewNop()
	h.walletSvc = NewWalletService(h.wallets, h.audit, h.publisher, log)
	h.contentSvc = NewContentService(h.content, h.audit, h.publisher, log)
	h.settlement = NewSettlementService(h.walletSvc, h.contentSvc, h.ledger, h.transfers, h.audit, h.publisher, nil, h.cfg, log)
	h.register(t, h.treasury)
	return h
}

func (h *harness) register(t *testing.T, a account) {
	t.Helper()
	if _, err := h.walletSvc.RegisterWallet(context.Background(), a.addr, a.hex); err != nil {
		t.Fatalf("register %s: %v", a.addr, err)
	}
}
