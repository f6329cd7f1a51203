// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/shopspring/decimal"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAccount stores an account.
func (r *SQLRepository) SaveAccount(ctx context.Context, account *domain.Account) error {
	if account.UserID == "" {
		return fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO accounts (
			id, user_id, name, type, balance, credit_limit, currency, is_active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			balance = excluded.balance,
			credit_limit = excluded.credit_limit,
			currency = excluded.currency,
			is_active = excluded.is_active
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		account.ID, account.UserID, account.Name, string(account.Type),
		account.Balance, account.CreditLimit, account.Currency,
		boolInt(account.IsActive), account.CreatedAt,
	)
	return err
}

// ListAccounts retrieves all accounts owned by a user.
func (r *SQLRepository) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, name, type, balance, credit_limit, currency, is_active, created_at
		FROM accounts
		WHERE user_id = ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var a domain.Account
		var isActive int
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Name, &a.Type,
			&a.Balance, &a.CreditLimit, &a.Currency, &isActive, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		a.IsActive = isActive == 1
		accounts = append(accounts, &a)
	}

	return accounts, rows.Err()
}

// SaveTransaction stores a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.UserID == "" {
		return fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, user_id, account_id, type, amount, category, description,
			date, status, is_recurring, recurrence_frequency,
			recurrence_next_date, recurrence_end_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.AccountID, string(tx.Type),
		tx.Amount, tx.Category, tx.Description,
		tx.Date, tx.Status, boolInt(tx.IsRecurring), tx.RecurrenceFrequency,
		nullTime(tx.RecurrenceNextDate), nullTime(tx.RecurrenceEndDate), tx.CreatedAt,
	)
	return err
}

// ListTransactionsSince retrieves a user's transactions on or after the
// given instant, newest first.
func (r *SQLRepository) ListTransactionsSince(ctx context.Context, userID string, since time.Time) ([]*domain.Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, account_id, type, amount, category, description,
			   date, status, is_recurring, recurrence_frequency,
			   recurrence_next_date, recurrence_end_date, created_at
		FROM transactions
		WHERE user_id = ? AND date >= ?
		ORDER BY date DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListRecurringTransactions retrieves recurring transactions whose next
// renewal falls in [from, to).
func (r *SQLRepository) ListRecurringTransactions(ctx context.Context, userID string, from, to time.Time) ([]*domain.Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, account_id, type, amount, category, description,
			   date, status, is_recurring, recurrence_frequency,
			   recurrence_next_date, recurrence_end_date, created_at
		FROM transactions
		WHERE user_id = ? AND is_recurring = 1
		  AND recurrence_next_date >= ? AND recurrence_next_date < ?
		ORDER BY recurrence_next_date
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var isRecurring int
		var frequency sql.NullString
		var nextDate, endDate sql.NullTime

		if err := rows.Scan(
			&tx.ID, &tx.UserID, &tx.AccountID, &tx.Type,
			&tx.Amount, &tx.Category, &tx.Description,
			&tx.Date, &tx.Status, &isRecurring, &frequency,
			&nextDate, &endDate, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}

		tx.IsRecurring = isRecurring == 1
		tx.RecurrenceFrequency = frequency.String
		if nextDate.Valid {
			t := nextDate.Time
			tx.RecurrenceNextDate = &t
		}
		if endDate.Valid {
			t := endDate.Time
			tx.RecurrenceEndDate = &t
		}

		transactions = append(transactions, &tx)
	}
	return transactions, rows.Err()
}

// SaveBudget stores a budget.
func (r *SQLRepository) SaveBudget(ctx context.Context, budget *domain.Budget) error {
	if budget.UserID == "" {
		return fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO budgets (
			id, user_id, category, amount, month, year, start_date, end_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			amount = excluded.amount,
			month = excluded.month,
			year = excluded.year,
			start_date = excluded.start_date,
			end_date = excluded.end_date
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		budget.ID, budget.UserID, budget.Category, budget.Amount,
		budget.Month, budget.Year, budget.StartDate, budget.EndDate, budget.CreatedAt,
	)
	return err
}

// ListBudgets retrieves a user's budgets for one calendar month.
func (r *SQLRepository) ListBudgets(ctx context.Context, userID string, month, year int) ([]*domain.Budget, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, category, amount, month, year, start_date, end_date, created_at
		FROM budgets
		WHERE user_id = ? AND month = ? AND year = ?
		ORDER BY category
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, month, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var budgets []*domain.Budget
	for rows.Next() {
		var b domain.Budget
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.Category, &b.Amount,
			&b.Month, &b.Year, &b.StartDate, &b.EndDate, &b.CreatedAt,
		); err != nil {
			return nil, err
		}
		budgets = append(budgets, &b)
	}

	return budgets, rows.Err()
}

// SaveBill stores a bill.
func (r *SQLRepository) SaveBill(ctx context.Context, bill *domain.Bill) error {
	if bill.UserID == "" {
		return fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO bills (
			id, user_id, name, amount, category, due_date, is_paid, is_active, is_autopay, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			amount = excluded.amount,
			category = excluded.category,
			due_date = excluded.due_date,
			is_paid = excluded.is_paid,
			is_active = excluded.is_active,
			is_autopay = excluded.is_autopay
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		bill.ID, bill.UserID, bill.Name, bill.Amount.String(),
		bill.Category, bill.DueDate, boolInt(bill.IsPaid),
		boolInt(bill.IsActive), boolInt(bill.IsAutopay), bill.CreatedAt,
	)
	return err
}

// GetBill retrieves a bill by ID, owner-checked.
func (r *SQLRepository) GetBill(ctx context.Context, userID, billID string) (*domain.Bill, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, name, amount, category, due_date, is_paid, is_active, is_autopay, created_at
		FROM bills
		WHERE user_id = ? AND id = ?
	`

	bill, err := scanBill(r.db.QueryRowContext(ctx, r.rebind(query), userID, billID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return bill, err
}

// ListBillsDueBetween retrieves a user's bills due in [from, to).
func (r *SQLRepository) ListBillsDueBetween(ctx context.Context, userID string, from, to time.Time) ([]*domain.Bill, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, name, amount, category, due_date, is_paid, is_active, is_autopay, created_at
		FROM bills
		WHERE user_id = ? AND due_date >= ? AND due_date < ?
		ORDER BY due_date
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []*domain.Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}

	return bills, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (*domain.Bill, error) {
	var b domain.Bill
	var amount string
	var isPaid, isActive, isAutopay int

	if err := row.Scan(
		&b.ID, &b.UserID, &b.Name, &amount, &b.Category,
		&b.DueDate, &isPaid, &isActive, &isAutopay, &b.CreatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bill amount %q: %w", amount, err)
	}
	b.Amount = parsed
	b.IsPaid = isPaid == 1
	b.IsActive = isActive == 1
	b.IsAutopay = isAutopay == 1
	return &b, nil
}

// SaveReward stores a reward entry. The unique (user, bill) index backs
// the idempotent-create guarantee at the storage layer.
func (r *SQLRepository) SaveReward(ctx context.Context, reward *domain.Reward) error {
	if reward.UserID == "" {
		return fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO rewards (
			id, user_id, bill_id, points, bill_amount, category,
			on_time_payment, description, earned_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		reward.ID, reward.UserID, reward.BillID, reward.Points,
		reward.BillAmount.String(), reward.Category,
		boolInt(reward.OnTimePayment), reward.Description, reward.EarnedAt,
	)
	return err
}

// GetRewardByBill retrieves the reward earned for one bill.
func (r *SQLRepository) GetRewardByBill(ctx context.Context, userID, billID string) (*domain.Reward, error) {
	if userID == "" || billID == "" {
		return nil, fmt.Errorf("%w: userID and billID are required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, bill_id, points, bill_amount, category,
			   on_time_payment, description, earned_at
		FROM rewards
		WHERE user_id = ? AND bill_id = ?
	`

	reward, err := scanReward(r.db.QueryRowContext(ctx, r.rebind(query), userID, billID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return reward, err
}

// ListRewards retrieves reward entries matching the filter, newest first.
func (r *SQLRepository) ListRewards(ctx context.Context, userID string, filter domain.RewardFilter) ([]*domain.Reward, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, bill_id, points, bill_amount, category,
			   on_time_payment, description, earned_at
		FROM rewards
		WHERE user_id = ?
	`
	args := []any{userID}

	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.OnTimeOnly {
		query += " AND on_time_payment = 1"
	}
	if !filter.EarnedAfter.IsZero() {
		query += " AND earned_at >= ?"
		args = append(args, filter.EarnedAfter)
	}
	if !filter.EarnedBefore.IsZero() {
		query += " AND earned_at < ?"
		args = append(args, filter.EarnedBefore)
	}

	query += " ORDER BY earned_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rewards []*domain.Reward
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, reward)
	}

	return rewards, rows.Err()
}

func scanReward(row rowScanner) (*domain.Reward, error) {
	var reward domain.Reward
	var amount string
	var onTime int

	if err := row.Scan(
		&reward.ID, &reward.UserID, &reward.BillID, &reward.Points,
		&amount, &reward.Category, &onTime, &reward.Description, &reward.EarnedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reward amount %q: %w", amount, err)
	}
	reward.BillAmount = parsed
	reward.OnTimePayment = onTime == 1
	return &reward, nil
}

// TotalPoints sums one user's points.
func (r *SQLRepository) TotalPoints(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `SELECT COALESCE(SUM(points), 0) FROM rewards WHERE user_id = ?`

	var total int
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID).Scan(&total)
	return total, err
}

// LeaderboardTotals ranks users by points earned in [from, to),
// descending by points then entry count.
func (r *SQLRepository) LeaderboardTotals(ctx context.Context, from, to time.Time, limit int) ([]*domain.LeaderboardEntry, error) {
	query := `
		SELECT user_id, SUM(points) AS total_points, COUNT(*) AS reward_count
		FROM rewards
		WHERE earned_at >= ? AND earned_at < ?
		GROUP BY user_id
		ORDER BY total_points DESC, reward_count DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.TotalPoints, &e.RewardCount); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// SaveAlert stores an alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.UserID == "" {
		return fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	entityData, _ := json.Marshal(alert.EntityData)
	data, _ := json.Marshal(alert.Data)

	query := `
		INSERT INTO alerts (
			id, user_id, alert_type, title, message, severity,
			entity_type, entity_id, entity_data, data, amount, threshold,
			status, is_read, is_actionable, action_taken,
			created_at, acknowledged_at, resolved_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.UserID, string(alert.Type), alert.Title, alert.Message, alert.Severity,
		string(alert.EntityType), alert.EntityID, string(entityData), string(data),
		nullFloat(alert.Amount), nullFloat(alert.Threshold),
		string(alert.Status), boolInt(alert.IsRead), boolInt(alert.IsActionable), boolInt(alert.ActionTaken),
		alert.CreatedAt, nullTime(alert.AcknowledgedAt), nullTime(alert.ResolvedAt), nullTime(alert.ExpiresAt),
	)
	return err
}

const alertColumns = `id, user_id, alert_type, title, message, severity,
	   entity_type, entity_id, entity_data, data, amount, threshold,
	   status, is_read, is_actionable, action_taken,
	   created_at, acknowledged_at, resolved_at, expires_at`

// GetAlert retrieves an alert by ID, owner-checked.
func (r *SQLRepository) GetAlert(ctx context.Context, userID, alertID string) (*domain.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = ? AND id = ?`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), userID, alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return alert, err
}

// ListAlerts retrieves alerts matching the filter, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, userID string, filter domain.AlertFilter) ([]*domain.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = ?`
	args := []any{userID}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		query += " AND alert_type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.UnreadOnly {
		query += " AND is_read = 0"
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// FindActiveAlert looks up the newest active alert for a dedup key
// created on or after the given instant.
func (r *SQLRepository) FindActiveAlert(ctx context.Context, userID string, alertType domain.AlertType, entityType domain.EntityType, entityID string, createdAfter time.Time) (*domain.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE user_id = ? AND alert_type = ? AND entity_type = ? AND entity_id = ?
		  AND status = 'active' AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query),
		userID, string(alertType), string(entityType), entityID, createdAfter))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return alert, err
}

// UpdateAlert persists alert mutations, owner-checked.
func (r *SQLRepository) UpdateAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.UserID == "" {
		return fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE alerts SET
			status = ?, is_read = ?, action_taken = ?,
			acknowledged_at = ?, resolved_at = ?
		WHERE user_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(alert.Status), boolInt(alert.IsRead), boolInt(alert.ActionTaken),
		nullTime(alert.AcknowledgedAt), nullTime(alert.ResolvedAt),
		alert.UserID, alert.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkAllAlertsRead marks every unread alert read and returns the count.
func (r *SQLRepository) MarkAllAlertsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE alerts
		SET is_read = 1, acknowledged_at = ?
		WHERE user_id = ? AND is_read = 0
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), at, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ArchiveExpiredAlerts archives one batch of active alerts past their
// expiry and returns how many it touched. Callers loop until a batch
// comes back short.
func (r *SQLRepository) ArchiveExpiredAlerts(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	query := `
		UPDATE alerts
		SET status = 'archived', is_read = 1
		WHERE id IN (
			SELECT id FROM alerts
			WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= ?
			LIMIT ?
		)
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), now, batchSize)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ArchiveAlertsOlderThan archives active alerts created before the cutoff.
func (r *SQLRepository) ArchiveAlertsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE alerts
		SET status = 'archived', is_read = 1
		WHERE status = 'active' AND created_at < ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var entityData, data string
	var amount, threshold sql.NullFloat64
	var isRead, isActionable, actionTaken int
	var acknowledgedAt, resolvedAt, expiresAt sql.NullTime

	if err := row.Scan(
		&a.ID, &a.UserID, &a.Type, &a.Title, &a.Message, &a.Severity,
		&a.EntityType, &a.EntityID, &entityData, &data, &amount, &threshold,
		&a.Status, &isRead, &isActionable, &actionTaken,
		&a.CreatedAt, &acknowledgedAt, &resolvedAt, &expiresAt,
	); err != nil {
		return nil, err
	}

	if entityData != "" && entityData != "null" {
		json.Unmarshal([]byte(entityData), &a.EntityData)
	}
	if data != "" && data != "null" {
		json.Unmarshal([]byte(data), &a.Data)
	}
	if amount.Valid {
		a.Amount = &amount.Float64
	}
	if threshold.Valid {
		a.Threshold = &threshold.Float64
	}
	a.IsRead = isRead == 1
	a.IsActionable = isActionable == 1
	a.ActionTaken = actionTaken == 1
	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		a.AcknowledgedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}

	return &a, nil
}

// SaveAlertRule upserts a custom alert rule.
func (r *SQLRepository) SaveAlertRule(ctx context.Context, rule *domain.AlertRuleConfig) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", domain.ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)
	now := time.Now().UTC()

	query := `
		INSERT INTO alert_rules (
			id, user_id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	version := rule.Version
	if version == "" {
		version = "1"
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.UserID, rule.Name, rule.Description,
		version, rule.Expression, string(bands), boolInt(rule.Enabled),
		now, now,
	)
	return err
}

// ListAlertRules retrieves custom rules for one owner, or every rule
// when ownerID is empty.
func (r *SQLRepository) ListAlertRules(ctx context.Context, ownerID string) ([]*domain.AlertRuleConfig, error) {
	query := `
		SELECT id, user_id, name, description, version, expression, bands, enabled
		FROM alert_rules
	`
	var args []any
	if ownerID != "" {
		query += " WHERE user_id = ?"
		args = append(args, ownerID)
	}
	query += " ORDER BY name"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AlertRuleConfig
	for rows.Next() {
		var cfg domain.AlertRuleConfig
		var description sql.NullString
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.UserID, &cfg.Name, &description,
			&cfg.Version, &cfg.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Description = description.String
		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		rules = append(rules, &cfg)
	}

	return rules, rows.Err()
}

// DeleteAlertRule removes a custom rule, owner-checked.
func (r *SQLRepository) DeleteAlertRule(ctx context.Context, ownerID, ruleID string) error {
	if ownerID == "" {
		return fmt.Errorf("%w: ownerID is required", domain.ErrInvalidInput)
	}

	query := `DELETE FROM alert_rules WHERE user_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), ownerID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
