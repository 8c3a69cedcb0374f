/*
Package sqlite provides the SQLite-backed implementation of engine.Store.

PURPOSE:
  Implements all persistence interfaces (MemberStore, LedgerStore,
  StructureStore) using SQLite. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE on ledger_entries or purchase_events
  - The only mutations are the wallet/counter increments that ride in the
    same transaction as a ledger insert

KEY TABLES:
  members:          Member records, wallets, activation windows
  purchase_events:  Write-once purchase records (unique idempotency key)
  ledger_entries:   Append-only ledger (unique event+recipient+kind)
  structures:       Versioned commission structures (rows are immutable)

IDEMPOTENCY:
  idx_ledger_unique on (purchase_event_id, recipient_id, kind) is the
  database-level guarantee that a retried batch can never double-credit a
  wallet: Apply() checks the key inside the transaction and skips existing
  rows, and the unique index backstops any race.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block and a single writer at a time commits each
  purchase batch atomically.

USAGE:
  store, err := sqlite.New("./data/commission.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  processor := engine.NewProcessor(store)

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := store.seedPseudoAccounts(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed pseudo-accounts: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ engine.Store = (*Store)(nil)

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Members (wallets and activation windows; never deleted)
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sponsor_id TEXT REFERENCES members(id),
		joined_at TEXT NOT NULL,
		active_until TEXT NOT NULL,
		career_level INTEGER NOT NULL DEFAULT 1,
		wallet_balance TEXT NOT NULL DEFAULT '0',
		total_earnings TEXT NOT NULL DEFAULT '0',
		sponsor_bonus_total TEXT NOT NULL DEFAULT '0',
		career_bonus_total TEXT NOT NULL DEFAULT '0',
		passive_income_total TEXT NOT NULL DEFAULT '0',
		company_fund_total TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_sponsor ON members(sponsor_id);
	CREATE INDEX IF NOT EXISTS idx_members_active_until ON members(active_until);

	-- Purchase events (write-once)
	CREATE TABLE IF NOT EXISTS purchase_events (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL REFERENCES members(id),
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		source_kind TEXT NOT NULL,
		is_first_purchase INTEGER NOT NULL,
		event_time TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		structure_version INTEGER NOT NULL,
		months_granted INTEGER NOT NULL,
		new_active_until TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_buyer ON purchase_events(buyer_id);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		purchase_event_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL REFERENCES members(id),
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		applied_at TEXT NOT NULL
	);

	-- CRITICAL: the idempotency key. A retried batch can never insert the
	-- same split of the same purchase twice.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_unique
		ON ledger_entries(purchase_event_id, recipient_id, kind);
	CREATE INDEX IF NOT EXISTS idx_ledger_recipient
		ON ledger_entries(recipient_id, applied_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_purchase
		ON ledger_entries(purchase_event_id);

	-- Commission structures (versioned, rows immutable)
	CREATE TABLE IF NOT EXISTS structures (
		version INTEGER PRIMARY KEY AUTOINCREMENT,
		direct_sponsor_pct TEXT NOT NULL,
		depth_pct_json TEXT NOT NULL,
		passive_pool_pct TEXT NOT NULL,
		company_fund_pct TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// seedPseudoAccounts inserts the pool and company accounts if missing.
// They hold ledger balances but are never active and never purchase.
func (s *Store) seedPseudoAccounts() error {
	now := time.Now().UTC().Format(time.RFC3339)
	// Far in the past: pseudo-accounts are never "active".
	never := time.Time{}.Format(time.RFC3339)

	for id, name := range map[engine.MemberID]string{
		engine.PoolAccountID:    "Passive Income Pool",
		engine.CompanyAccountID: "Company Fund",
	} {
		_, err := s.db.Exec(`
			INSERT INTO members (id, name, sponsor_id, joined_at, active_until, career_level, created_at)
			VALUES (?, ?, NULL, ?, ?, 1, ?)
			ON CONFLICT(id) DO NOTHING`,
			id, name, now, never, now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// MEMBER STORE (engine.MemberStore interface)
// =============================================================================

func (s *Store) CreateMember(ctx context.Context, m engine.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.SponsorID != nil {
		var count int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM members WHERE id = ?", *m.SponsorID,
		).Scan(&count); err != nil {
			return storageErr(err)
		}
		if count == 0 {
			return engine.ErrSponsorNotFound
		}
	}

	var sponsorID any
	if m.SponsorID != nil {
		sponsorID = string(*m.SponsorID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, sponsor_id, joined_at, active_until, career_level,
			wallet_balance, total_earnings, sponsor_bonus_total, career_bonus_total,
			passive_income_total, company_fund_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, sponsorID,
		m.JoinedAt.UTC().Format(time.RFC3339),
		m.ActiveUntil.UTC().Format(time.RFC3339),
		m.CareerLevel,
		m.WalletBalance.Value.String(),
		m.TotalEarnings.Value.String(),
		m.SponsorBonusTotal.Value.String(),
		m.CareerBonusTotal.Value.String(),
		m.PassiveIncomeTotal.Value.String(),
		m.CompanyFundTotal.Value.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return storageErr(err)
	}
	return nil
}

const memberColumns = `id, name, sponsor_id, joined_at, active_until, career_level,
	wallet_balance, total_earnings, sponsor_bonus_total, career_bonus_total,
	passive_income_total, company_fund_total`

func (s *Store) Member(ctx context.Context, id engine.MemberID) (*engine.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE id = ?", id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]engine.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+memberColumns+" FROM members ORDER BY id")
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var members []engine.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *Store) ActiveMemberIDs(ctx context.Context, asOf time.Time) ([]engine.MemberID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM members
		WHERE active_until >= ? AND id NOT IN (?, ?)
		ORDER BY id`,
		asOf.UTC().Format(time.RFC3339), engine.PoolAccountID, engine.CompanyAccountID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var ids []engine.MemberID
	for rows.Next() {
		var id engine.MemberID
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) SetActiveUntil(ctx context.Context, id engine.MemberID, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE members SET active_until = ? WHERE id = ?",
		until.UTC().Format(time.RFC3339), id)
	if err != nil {
		return storageErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrMemberNotFound
	}
	return nil
}

func (s *Store) Sponsor(ctx context.Context, id engine.MemberID) (*engine.MemberID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sponsorID sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT sponsor_id FROM members WHERE id = ?", id).Scan(&sponsorID)
	if err == sql.ErrNoRows {
		return nil, engine.ErrMemberNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	if !sponsorID.Valid {
		return nil, nil
	}
	mid := engine.MemberID(sponsorID.String)
	return &mid, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*engine.Member, error) {
	var (
		m           engine.Member
		sponsorID   sql.NullString
		joinedAt    string
		activeUntil string
		wallet      string
		total       string
		sponsor     string
		career      string
		passive     string
		company     string
	)
	err := row.Scan(&m.ID, &m.Name, &sponsorID, &joinedAt, &activeUntil, &m.CareerLevel,
		&wallet, &total, &sponsor, &career, &passive, &company)
	if err != nil {
		return nil, err
	}
	if sponsorID.Valid {
		id := engine.MemberID(sponsorID.String)
		m.SponsorID = &id
	}
	m.JoinedAt, _ = time.Parse(time.RFC3339, joinedAt)
	m.ActiveUntil, _ = time.Parse(time.RFC3339, activeUntil)
	m.WalletBalance = engine.MustParseMoney(wallet)
	m.TotalEarnings = engine.MustParseMoney(total)
	m.SponsorBonusTotal = engine.MustParseMoney(sponsor)
	m.CareerBonusTotal = engine.MustParseMoney(career)
	m.PassiveIncomeTotal = engine.MustParseMoney(passive)
	m.CompanyFundTotal = engine.MustParseMoney(company)
	return &m, nil
}

// =============================================================================
// LEDGER STORE (engine.LedgerStore interface)
// =============================================================================

func (s *Store) RecordPurchase(ctx context.Context, rec engine.PurchaseRecord) (engine.PurchaseRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_events (id, buyer_id, amount, currency, source_kind,
			is_first_purchase, event_time, idempotency_key, structure_version,
			months_granted, new_active_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Event.ID, rec.Event.BuyerID, rec.Event.Amount.Value.String(),
		currencyOrDefault(rec.Event.Currency), rec.Event.SourceKind,
		boolInt(rec.Event.IsFirstPurchase),
		rec.Event.Timestamp.UTC().Format(time.RFC3339),
		rec.Event.IdempotencyKey, rec.Event.StructureVersion,
		rec.MonthsGranted,
		rec.NewActiveUntil.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			existing, lookupErr := s.purchaseByKeyLocked(ctx, rec.Event.IdempotencyKey)
			if lookupErr != nil {
				return engine.PurchaseRecord{}, false, lookupErr
			}
			return *existing, false, nil
		}
		return engine.PurchaseRecord{}, false, storageErr(err)
	}
	return rec, true, nil
}

func (s *Store) PurchaseByKey(ctx context.Context, idempotencyKey string) (*engine.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.purchaseByKeyLocked(ctx, idempotencyKey)
}

const purchaseColumns = `id, buyer_id, amount, currency, source_kind, is_first_purchase,
	event_time, idempotency_key, structure_version, months_granted, new_active_until`

func (s *Store) purchaseByKeyLocked(ctx context.Context, idempotencyKey string) (*engine.PurchaseRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+purchaseColumns+" FROM purchase_events WHERE idempotency_key = ?",
		idempotencyKey)
	return scanPurchase(row)
}

func (s *Store) PurchaseByID(ctx context.Context, id string) (*engine.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+purchaseColumns+" FROM purchase_events WHERE id = ?", id)
	return scanPurchase(row)
}

func scanPurchase(row rowScanner) (*engine.PurchaseRecord, error) {
	var (
		rec            engine.PurchaseRecord
		amount         string
		firstPurchase  int
		eventTime      string
		newActiveUntil string
	)
	err := row.Scan(&rec.Event.ID, &rec.Event.BuyerID, &amount, &rec.Event.Currency,
		&rec.Event.SourceKind, &firstPurchase, &eventTime, &rec.Event.IdempotencyKey,
		&rec.Event.StructureVersion, &rec.MonthsGranted, &newActiveUntil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	rec.Event.Amount = engine.MustParseMoney(amount)
	rec.Event.IsFirstPurchase = firstPurchase != 0
	rec.Event.Timestamp, _ = time.Parse(time.RFC3339, eventTime)
	rec.NewActiveUntil, _ = time.Parse(time.RFC3339, newActiveUntil)
	return &rec, nil
}

// Apply inserts a batch of ledger entries atomically and idempotently.
// For each new (purchase_event_id, recipient_id, kind) key: insert the row
// and increment the recipient's wallet and matching counter in the SAME
// database transaction. Existing keys skip. Any other failure rolls the
// whole batch back - a purchase is never half-applied.
func (s *Store) Apply(ctx context.Context, entries []engine.LedgerEntry) (engine.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result engine.ApplyResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, storageErr(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range entries {
		e := entries[i]

		var count int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM ledger_entries
			WHERE purchase_event_id = ? AND recipient_id = ? AND kind = ?`,
			e.PurchaseEventID, e.RecipientID, e.Kind,
		).Scan(&count); err != nil {
			return engine.ApplyResult{}, storageErr(err)
		}
		if count > 0 {
			result.Skipped++
			continue
		}

		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.AppliedAt.IsZero() {
			e.AppliedAt = now
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (id, purchase_event_id, recipient_id, kind, amount, applied_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.PurchaseEventID, e.RecipientID, e.Kind,
			e.Amount.Value.String(), e.AppliedAt.Format(time.RFC3339),
		); err != nil {
			// Another writer won the unique index race; the entry exists.
			if isUniqueConstraintError(err) {
				result.Skipped++
				continue
			}
			return engine.ApplyResult{}, &engine.BatchError{PurchaseEventID: e.PurchaseEventID, Entry: &e, Err: storageErr(err)}
		}

		if err := creditWallet(ctx, tx, e); err != nil {
			return engine.ApplyResult{}, &engine.BatchError{PurchaseEventID: e.PurchaseEventID, Entry: &e, Err: err}
		}
		result.Applied++
	}

	if err := tx.Commit(); err != nil {
		return engine.ApplyResult{}, storageErr(err)
	}
	return result, nil
}

// creditWallet increments the recipient's wallet and the counter matching
// the entry kind, inside the batch transaction.
func creditWallet(ctx context.Context, tx *sql.Tx, e engine.LedgerEntry) error {
	var wallet, total, sponsor, career, passive, company string
	err := tx.QueryRowContext(ctx, `
		SELECT wallet_balance, total_earnings, sponsor_bonus_total, career_bonus_total,
			passive_income_total, company_fund_total
		FROM members WHERE id = ?`, e.RecipientID,
	).Scan(&wallet, &total, &sponsor, &career, &passive, &company)
	if err == sql.ErrNoRows {
		return engine.ErrMemberNotFound
	}
	if err != nil {
		return storageErr(err)
	}

	add := func(s string) string {
		return engine.MustParseMoney(s).Add(e.Amount).Value.String()
	}

	wallet = add(wallet)
	if e.Amount.IsPositive() {
		total = add(total)
	}
	switch {
	case e.Kind == engine.KindDirectSponsor:
		sponsor = add(sponsor)
	case e.Kind.DepthLevel() > 0:
		career = add(career)
	case e.Kind == engine.KindPoolPayout && e.Amount.IsPositive():
		passive = add(passive)
	case e.Kind == engine.KindCompanyFund:
		company = add(company)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE members SET wallet_balance = ?, total_earnings = ?,
			sponsor_bonus_total = ?, career_bonus_total = ?,
			passive_income_total = ?, company_fund_total = ?
		WHERE id = ?`,
		wallet, total, sponsor, career, passive, company, e.RecipientID)
	if err != nil {
		return storageErr(err)
	}
	return nil
}

const entryColumns = `id, purchase_event_id, recipient_id, kind, amount, applied_at`

func (s *Store) EntriesForPurchase(ctx context.Context, purchaseEventID string) ([]engine.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE purchase_event_id = ?
		ORDER BY applied_at ASC, id ASC`, purchaseEventID)
}

func (s *Store) EntriesForMember(ctx context.Context, id engine.MemberID) ([]engine.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE recipient_id = ?
		ORDER BY applied_at ASC, id ASC`, id)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]engine.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var entries []engine.LedgerEntry
	for rows.Next() {
		var (
			e         engine.LedgerEntry
			amount    string
			appliedAt string
		)
		if err := rows.Scan(&e.ID, &e.PurchaseEventID, &e.RecipientID, &e.Kind, &amount, &appliedAt); err != nil {
			return nil, storageErr(err)
		}
		e.Amount = engine.MustParseMoney(amount)
		e.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) PoolBalance(ctx context.Context) (engine.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wallet string
	err := s.db.QueryRowContext(ctx,
		"SELECT wallet_balance FROM members WHERE id = ?", engine.PoolAccountID,
	).Scan(&wallet)
	if err != nil {
		return engine.ZeroMoney(), storageErr(err)
	}
	return engine.MustParseMoney(wallet), nil
}

// =============================================================================
// STRUCTURE STORE (engine.StructureStore interface)
// =============================================================================

func (s *Store) SaveStructure(ctx context.Context, structure engine.Structure) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := structure.Validate(); err != nil {
		return 0, err
	}

	depths := make([]string, engine.DepthLevels)
	for i, pct := range structure.DepthPct {
		depths[i] = pct.String()
	}
	depthJSON, _ := json.Marshal(depths)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO structures (direct_sponsor_pct, depth_pct_json, passive_pool_pct, company_fund_pct, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		structure.DirectSponsorPct.String(), string(depthJSON),
		structure.PassivePoolPct.String(), structure.CompanyFundPct.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, storageErr(err)
	}
	version, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr(err)
	}
	return int(version), nil
}

func (s *Store) CurrentStructure(ctx context.Context) (*engine.Structure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT version, direct_sponsor_pct, depth_pct_json, passive_pool_pct, company_fund_pct
		FROM structures ORDER BY version DESC LIMIT 1`)
	return scanStructure(row)
}

func (s *Store) StructureByVersion(ctx context.Context, version int) (*engine.Structure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT version, direct_sponsor_pct, depth_pct_json, passive_pool_pct, company_fund_pct
		FROM structures WHERE version = ?`, version)
	return scanStructure(row)
}

func scanStructure(row rowScanner) (*engine.Structure, error) {
	var (
		structure engine.Structure
		direct    string
		depthJSON string
		pool      string
		company   string
	)
	err := row.Scan(&structure.Version, &direct, &depthJSON, &pool, &company)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}

	structure.DirectSponsorPct = mustDecimal(direct)
	structure.PassivePoolPct = mustDecimal(pool)
	structure.CompanyFundPct = mustDecimal(company)

	var depths []string
	if err := json.Unmarshal([]byte(depthJSON), &depths); err != nil {
		return nil, fmt.Errorf("corrupt depth percentages: %w", err)
	}
	for i := 0; i < engine.DepthLevels && i < len(depths); i++ {
		structure.DepthPct[i] = mustDecimal(depths[i])
	}
	return &structure, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", engine.ErrStorageFailure, err)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "USD"
	}
	return c
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
