package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/babulele/AgroMarketHub-sub000/configs"
	"github.com/babulele/AgroMarketHub-sub000/internal/auction"
	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
)

// Store is the PostgreSQL implementation of auction.Store. Per-auction
// serialization uses SELECT ... FOR UPDATE, so the lock lives in the
// database row and two bids on different auctions never contend.
type Store struct {
	db *sql.DB
}

var _ auction.Store = (*Store)(nil)

func New(cfg *configs.Config) (*Store, error) {
	dbConfig := cfg.Database
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Name,
		dbConfig.SSLMode,
	)
	return Open(connStr)
}

func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS auctions (
    id                  uuid PRIMARY KEY,
    farmer_id           text NOT NULL,
    product_id          text NOT NULL,
    title               text NOT NULL,
    description         text NOT NULL DEFAULT '',
    starting_price      bigint NOT NULL CHECK (starting_price >= 0),
    reserve_price       bigint NOT NULL DEFAULT 0,
    current_highest_bid bigint NOT NULL DEFAULT 0,
    minimum_increment   bigint NOT NULL CHECK (minimum_increment >= 1),
    quantity            bigint NOT NULL CHECK (quantity >= 1),
    unit                text NOT NULL DEFAULT 'kg',
    start_date          timestamptz NOT NULL,
    end_date            timestamptz NOT NULL,
    status              text NOT NULL DEFAULT 'draft',
    winning_bid_id      uuid,
    winning_buyer_id    text,
    winning_quantity    bigint NOT NULL DEFAULT 0,
    bid_count           bigint NOT NULL DEFAULT 0,
    county              text NOT NULL,
    sub_county          text NOT NULL DEFAULT '',
    version             bigint NOT NULL DEFAULT 0,
    created_at          timestamptz NOT NULL DEFAULT now(),
    updated_at          timestamptz NOT NULL DEFAULT now(),
    CHECK (end_date > start_date)
);

CREATE TABLE IF NOT EXISTS bids (
    id           uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    auction_id   uuid NOT NULL REFERENCES auctions(id),
    buyer_id     text NOT NULL,
    amount       bigint NOT NULL CHECK (amount > 0),
    quantity     bigint NOT NULL CHECK (quantity >= 1),
    is_winning   boolean NOT NULL DEFAULT false,
    submitted_at timestamptz NOT NULL DEFAULT clock_timestamp(),
    seq          bigserial
);

CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status);
CREATE INDEX IF NOT EXISTS idx_auctions_county ON auctions(county);
CREATE INDEX IF NOT EXISTS idx_auctions_farmer ON auctions(farmer_id);
CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids(auction_id, seq);
CREATE INDEX IF NOT EXISTS idx_bids_buyer ON bids(buyer_id);
`

// Migrate creates the auction tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}
	return nil
}

// Health checks the health of the database connection by pinging the
// database. It returns a map with keys indicating various health statistics.
func (s *Store) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}
	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

// Close closes the database connection.
func (s *Store) Close() error {
	log.Info("Disconnected from database")
	return s.db.Close()
}

const auctionColumns = `
    id, farmer_id, product_id, title, description,
    starting_price, reserve_price, current_highest_bid, minimum_increment,
    quantity, unit, start_date, end_date, status,
    winning_bid_id, winning_buyer_id, winning_quantity, bid_count,
    county, sub_county, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (types.Auction, error) {
	var a types.Auction
	err := row.Scan(
		&a.ID,
		&a.FarmerID,
		&a.ProductID,
		&a.Title,
		&a.Description,
		&a.StartingPrice,
		&a.ReservePrice,
		&a.CurrentHighestBid,
		&a.MinimumIncrement,
		&a.Quantity,
		&a.Unit,
		&a.StartDate,
		&a.EndDate,
		&a.Status,
		&a.WinningBidID,
		&a.WinningBuyerID,
		&a.WinningQuantity,
		&a.BidCount,
		&a.County,
		&a.SubCounty,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func scanBid(row rowScanner) (types.Bid, error) {
	var b types.Bid
	err := row.Scan(&b.ID, &b.AuctionID, &b.BuyerID, &b.Amount, &b.Quantity, &b.Winning, &b.SubmittedAt)
	return b, err
}

func (s *Store) CreateAuction(ctx context.Context, a types.Auction) (types.Auction, error) {
	query := `
        INSERT INTO auctions (
            id, farmer_id, product_id, title, description,
            starting_price, reserve_price, minimum_increment,
            quantity, unit, start_date, end_date, status,
            county, sub_county, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
        RETURNING ` + auctionColumns
	row := s.db.QueryRowContext(ctx, query,
		a.ID, a.FarmerID, a.ProductID, a.Title, a.Description,
		a.StartingPrice, a.ReservePrice, a.MinimumIncrement,
		a.Quantity, a.Unit, a.StartDate, a.EndDate, a.Status,
		a.County, a.SubCounty, a.CreatedAt, a.UpdatedAt,
	)
	created, err := scanAuction(row)
	if err != nil {
		return types.Auction{}, fmt.Errorf("error creating auction: %w", err)
	}
	return created, nil
}

func (s *Store) GetAuction(ctx context.Context, id string) (types.Auction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Auction{}, auction.ErrNotFound
	}
	if err != nil {
		return types.Auction{}, fmt.Errorf("error getting auction by id: %w", err)
	}
	return a, nil
}

func (s *Store) ListAuctions(ctx context.Context, f auction.Filter) ([]types.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.County != "" {
		args = append(args, f.County)
		query += fmt.Sprintf(" AND county = $%d", len(args))
	}
	if f.FarmerID != "" {
		args = append(args, f.FarmerID)
		query += fmt.Sprintf(" AND farmer_id = $%d", len(args))
	}
	if len(f.ProductIDs) > 0 {
		args = append(args, f.ProductIDs)
		query += fmt.Sprintf(" AND product_id = ANY($%d)", len(args))
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing auctions: %w", err)
	}
	defer rows.Close()

	var auctions []types.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over auctions: %w", err)
	}
	return auctions, nil
}

func (s *Store) ListBids(ctx context.Context, auctionID string) ([]types.Bid, error) {
	query := `
        SELECT id, auction_id, buyer_id, amount, quantity, is_winning, submitted_at
        FROM bids WHERE auction_id = $1 ORDER BY seq ASC`
	return s.queryBids(ctx, query, auctionID)
}

func (s *Store) ListBidsByBuyer(ctx context.Context, buyerID string) ([]types.Bid, error) {
	query := `
        SELECT id, auction_id, buyer_id, amount, quantity, is_winning, submitted_at
        FROM bids WHERE buyer_id = $1 ORDER BY submitted_at DESC`
	return s.queryBids(ctx, query, buyerID)
}

func (s *Store) queryBids(ctx context.Context, query string, arg any) ([]types.Bid, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("error listing bids: %w", err)
	}
	defer rows.Close()

	var bids []types.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over bids: %w", err)
	}
	return bids, nil
}

// Begin opens a transaction and locks the auction row. The row lock is the
// per-auction serialization point: a second bidder on the same auction
// blocks here until the first commits, then reads the updated state.
func (s *Store) Begin(ctx context.Context, auctionID string) (auction.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return nil, auction.ErrNotFound
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error locking auction %s: %w", auctionID, err)
	}

	return &pgTx{tx: tx, auction: a}, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, from, to types.AuctionStatus) (types.Auction, bool, error) {
	query := `
        UPDATE auctions
        SET status = $1, version = version + 1, updated_at = now()
        WHERE id = $2 AND status = $3
        RETURNING ` + auctionColumns
	row := s.db.QueryRowContext(ctx, query, to, id, from)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		// No longer in the from status; report the current state instead.
		current, getErr := s.GetAuction(ctx, id)
		if getErr != nil {
			return types.Auction{}, false, getErr
		}
		return current, false, nil
	}
	if err != nil {
		return types.Auction{}, false, fmt.Errorf("error transitioning auction %s to %s: %w", id, to, err)
	}
	return a, true, nil
}

func (s *Store) ListDue(ctx context.Context, now time.Time) ([]types.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions
        WHERE (status = 'draft' AND start_date <= $1)
           OR (status = 'active' AND end_date < $1)`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error listing due auctions: %w", err)
	}
	defer rows.Close()

	var auctions []types.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over auctions: %w", err)
	}
	return auctions, nil
}

type pgTx struct {
	tx      *sql.Tx
	auction types.Auction
	done    bool
}

func (t *pgTx) Auction() *types.Auction {
	return &t.auction
}

func (t *pgTx) Accept(ctx context.Context, bid types.Bid) (types.Bid, error) {
	// Demote whatever bid currently holds the winning flag. At most one row
	// matches; the row lock on the auction keeps this atomic with the
	// insert below.
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE bids SET is_winning = false WHERE auction_id = $1 AND is_winning`, bid.AuctionID); err != nil {
		return types.Bid{}, fmt.Errorf("error demoting winning bid: %w", err)
	}

	row := t.tx.QueryRowContext(ctx, `
        INSERT INTO bids (auction_id, buyer_id, amount, quantity, is_winning)
        VALUES ($1, $2, $3, $4, true)
        RETURNING id, auction_id, buyer_id, amount, quantity, is_winning, submitted_at`,
		bid.AuctionID, bid.BuyerID, bid.Amount, bid.Quantity)
	created, err := scanBid(row)
	if err != nil {
		return types.Bid{}, fmt.Errorf("error creating bid: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, `
        UPDATE auctions
        SET current_highest_bid = $1,
            winning_bid_id = $2,
            winning_buyer_id = $3,
            winning_quantity = $4,
            bid_count = bid_count + 1,
            version = version + 1,
            updated_at = now()
        WHERE id = $5`,
		created.Amount, created.ID, created.BuyerID, created.Quantity, created.AuctionID); err != nil {
		return types.Bid{}, fmt.Errorf("error updating auction running state: %w", err)
	}

	log.Debugf("Auction %s staged new winning bid %s at KES %d", created.AuctionID, created.ID, created.Amount)
	return created, nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return auction.ErrConflict
		}
		return fmt.Errorf("error committing bid transaction: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// isSerializationFailure recognizes the PostgreSQL error classes that are
// safe to retry: serialization failure (40001) and deadlock detected (40P01).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
