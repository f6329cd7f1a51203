package repository

// Schema definitions for Finch.
// Compatible with both SQLite and PostgreSQL.

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    balance REAL NOT NULL DEFAULT 0,
    credit_limit REAL NOT NULL DEFAULT 0,
    currency TEXT NOT NULL DEFAULT 'USD',
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    type TEXT NOT NULL,
    amount REAL NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    date TIMESTAMP NOT NULL,
    status TEXT NOT NULL DEFAULT 'completed',
    is_recurring INTEGER NOT NULL DEFAULT 0,
    recurrence_frequency TEXT,
    recurrence_next_date TIMESTAMP,
    recurrence_end_date TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date);
CREATE INDEX IF NOT EXISTS idx_transactions_recurring ON transactions(user_id, is_recurring, recurrence_next_date);
`

const schemaBudgets = `
CREATE TABLE IF NOT EXISTS budgets (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    category TEXT NOT NULL,
    amount REAL NOT NULL,
    month INTEGER NOT NULL,
    year INTEGER NOT NULL,
    start_date TIMESTAMP NOT NULL,
    end_date TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_budgets_user_period ON budgets(user_id, year, month);
`

const schemaBills = `
CREATE TABLE IF NOT EXISTS bills (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    amount TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    due_date TIMESTAMP NOT NULL,
    is_paid INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    is_autopay INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bills_user_due ON bills(user_id, due_date);
`

const schemaRewards = `
CREATE TABLE IF NOT EXISTS rewards (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    bill_id TEXT NOT NULL DEFAULT '',
    points INTEGER NOT NULL,
    bill_amount TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    on_time_payment INTEGER NOT NULL DEFAULT 0,
    description TEXT NOT NULL DEFAULT '',
    earned_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rewards_user_earned ON rewards(user_id, earned_at);
CREATE INDEX IF NOT EXISTS idx_rewards_earned ON rewards(earned_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_rewards_user_bill ON rewards(user_id, bill_id) WHERE bill_id <> '';
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    title TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL DEFAULT 'info',
    entity_type TEXT NOT NULL DEFAULT '',
    entity_id TEXT NOT NULL DEFAULT '',
    entity_data TEXT,
    data TEXT,
    amount REAL,
    threshold REAL,
    status TEXT NOT NULL DEFAULT 'active',
    is_read INTEGER NOT NULL DEFAULT 0,
    is_actionable INTEGER NOT NULL DEFAULT 1,
    action_taken INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    acknowledged_at TIMESTAMP,
    resolved_at TIMESTAMP,
    expires_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_alerts_user_created ON alerts(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(user_id, alert_type, entity_type, entity_id, status, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_expiry ON alerts(status, expires_at);
`

const schemaAlertRules = `
CREATE TABLE IF NOT EXISTS alert_rules (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL DEFAULT '1',
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_rules_user ON alert_rules(user_id);
CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(user_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAccounts,
		schemaTransactions,
		schemaBudgets,
		schemaBills,
		schemaRewards,
		schemaAlerts,
		schemaAlertRules,
	}
}
