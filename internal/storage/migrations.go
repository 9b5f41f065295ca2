package storage

import (
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create endpoints table",
			SQL: `
				CREATE TABLE IF NOT EXISTS endpoints (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					url TEXT NOT NULL,
					headers TEXT, -- JSON
					active BOOLEAN DEFAULT TRUE,
					retry_count INTEGER NOT NULL DEFAULT 3,
					timeout_ms INTEGER NOT NULL DEFAULT 10000,
					last_triggered_at DATETIME,
					failure_count INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_endpoints_user ON endpoints(user_id);
				CREATE INDEX IF NOT EXISTS idx_endpoints_active ON endpoints(active);
			`,
		},
		{
			Version:     "002",
			Description: "Create monitoring_configs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS monitoring_configs (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					endpoint_id TEXT NOT NULL,
					event_type TEXT NOT NULL,
					name TEXT NOT NULL,
					description TEXT,
					parameters TEXT, -- JSON
					scope_type TEXT NOT NULL,
					scope_ids TEXT NOT NULL, -- JSON array
					active BOOLEAN DEFAULT TRUE,
					last_checked_at DATETIME,
					last_triggered_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (endpoint_id) REFERENCES endpoints (id)
				);

				CREATE INDEX IF NOT EXISTS idx_configs_active ON monitoring_configs(active);
				CREATE INDEX IF NOT EXISTS idx_configs_event_type ON monitoring_configs(event_type);
				CREATE INDEX IF NOT EXISTS idx_configs_endpoint ON monitoring_configs(endpoint_id);
			`,
		},
		{
			Version:     "003",
			Description: "Create campaigns table",
			SQL: `
				CREATE TABLE IF NOT EXISTS campaigns (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					client_id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_campaigns_client ON campaigns(client_id);
				CREATE INDEX IF NOT EXISTS idx_campaigns_user ON campaigns(user_id);
			`,
		},
		{
			Version:     "004",
			Description: "Create campaign_metrics_daily table",
			SQL: `
				CREATE TABLE IF NOT EXISTS campaign_metrics_daily (
					campaign_id TEXT NOT NULL,
					email_account TEXT NOT NULL,
					day DATE NOT NULL,
					sent INTEGER NOT NULL DEFAULT 0,
					opened INTEGER NOT NULL DEFAULT 0,
					replied INTEGER NOT NULL DEFAULT 0,
					positive_replied INTEGER NOT NULL DEFAULT 0,
					bounced INTEGER NOT NULL DEFAULT 0,
					PRIMARY KEY (campaign_id, email_account, day)
				);

				CREATE INDEX IF NOT EXISTS idx_metrics_campaign_day ON campaign_metrics_daily(campaign_id, day);
			`,
		},
		{
			Version:     "005",
			Description: "Create triggers table",
			SQL: `
				CREATE TABLE IF NOT EXISTS triggers (
					id TEXT PRIMARY KEY,
					config_id TEXT NOT NULL,
					endpoint_id TEXT NOT NULL,
					event_type TEXT NOT NULL,
					campaign_id TEXT,
					campaign_name TEXT,
					payload TEXT NOT NULL, -- JSON
					status TEXT NOT NULL DEFAULT 'pending',
					status_code INTEGER,
					response_body TEXT,
					error_message TEXT,
					attempt_count INTEGER NOT NULL DEFAULT 0,
					is_success BOOLEAN DEFAULT FALSE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					delivered_at DATETIME,
					FOREIGN KEY (config_id) REFERENCES monitoring_configs (id),
					FOREIGN KEY (endpoint_id) REFERENCES endpoints (id)
				);

				CREATE INDEX IF NOT EXISTS idx_triggers_status ON triggers(status);
				CREATE INDEX IF NOT EXISTS idx_triggers_config ON triggers(config_id);
				CREATE INDEX IF NOT EXISTS idx_triggers_config_campaign ON triggers(config_id, campaign_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_triggers_created_at ON triggers(created_at);
			`,
		},
		{
			Version:     "006",
			Description: "Create delivery_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS delivery_log (
					id TEXT PRIMARY KEY,
					trigger_id TEXT NOT NULL,
					attempt_number INTEGER NOT NULL,
					status_code INTEGER,
					response_body TEXT,
					error TEXT,
					latency_ms INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (trigger_id) REFERENCES triggers (id)
				);

				CREATE INDEX IF NOT EXISTS idx_delivery_log_trigger ON delivery_log(trigger_id);
			`,
		},
	}
}

// GetPostgreSQLMigrations returns PostgreSQL migration scripts
func GetPostgreSQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create endpoints table",
			SQL: `
				CREATE TABLE IF NOT EXISTS endpoints (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					url TEXT NOT NULL,
					headers JSONB,
					active BOOLEAN DEFAULT TRUE,
					retry_count INTEGER NOT NULL DEFAULT 3,
					timeout_ms BIGINT NOT NULL DEFAULT 10000,
					last_triggered_at TIMESTAMPTZ,
					failure_count BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ DEFAULT NOW(),
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_endpoints_user ON endpoints(user_id);
				CREATE INDEX IF NOT EXISTS idx_endpoints_active ON endpoints(active);
			`,
		},
		{
			Version:     "002",
			Description: "Create monitoring_configs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS monitoring_configs (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					endpoint_id TEXT NOT NULL REFERENCES endpoints(id),
					event_type TEXT NOT NULL,
					name TEXT NOT NULL,
					description TEXT,
					parameters JSONB,
					scope_type TEXT NOT NULL,
					scope_ids JSONB NOT NULL,
					active BOOLEAN DEFAULT TRUE,
					last_checked_at TIMESTAMPTZ,
					last_triggered_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ DEFAULT NOW(),
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_configs_active ON monitoring_configs(active);
				CREATE INDEX IF NOT EXISTS idx_configs_event_type ON monitoring_configs(event_type);
				CREATE INDEX IF NOT EXISTS idx_configs_endpoint ON monitoring_configs(endpoint_id);
			`,
		},
		{
			Version:     "003",
			Description: "Create campaigns table",
			SQL: `
				CREATE TABLE IF NOT EXISTS campaigns (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					client_id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					created_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_campaigns_client ON campaigns(client_id);
				CREATE INDEX IF NOT EXISTS idx_campaigns_user ON campaigns(user_id);
			`,
		},
		{
			Version:     "004",
			Description: "Create campaign_metrics_daily table",
			SQL: `
				CREATE TABLE IF NOT EXISTS campaign_metrics_daily (
					campaign_id TEXT NOT NULL,
					email_account TEXT NOT NULL,
					day DATE NOT NULL,
					sent BIGINT NOT NULL DEFAULT 0,
					opened BIGINT NOT NULL DEFAULT 0,
					replied BIGINT NOT NULL DEFAULT 0,
					positive_replied BIGINT NOT NULL DEFAULT 0,
					bounced BIGINT NOT NULL DEFAULT 0,
					PRIMARY KEY (campaign_id, email_account, day)
				);

				CREATE INDEX IF NOT EXISTS idx_metrics_campaign_day ON campaign_metrics_daily(campaign_id, day);
			`,
		},
		{
			Version:     "005",
			Description: "Create triggers table",
			SQL: `
				CREATE TABLE IF NOT EXISTS triggers (
					id TEXT PRIMARY KEY,
					config_id TEXT NOT NULL REFERENCES monitoring_configs(id),
					endpoint_id TEXT NOT NULL REFERENCES endpoints(id),
					event_type TEXT NOT NULL,
					campaign_id TEXT,
					campaign_name TEXT,
					payload JSONB NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					status_code INTEGER,
					response_body TEXT,
					error_message TEXT,
					attempt_count INTEGER NOT NULL DEFAULT 0,
					is_success BOOLEAN DEFAULT FALSE,
					created_at TIMESTAMPTZ DEFAULT NOW(),
					delivered_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_triggers_status ON triggers(status);
				CREATE INDEX IF NOT EXISTS idx_triggers_config ON triggers(config_id);
				CREATE INDEX IF NOT EXISTS idx_triggers_config_campaign ON triggers(config_id, campaign_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_triggers_created_at ON triggers(created_at);
			`,
		},
		{
			Version:     "006",
			Description: "Create delivery_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS delivery_log (
					id TEXT PRIMARY KEY,
					trigger_id TEXT NOT NULL REFERENCES triggers(id),
					attempt_number INTEGER NOT NULL,
					status_code INTEGER,
					response_body TEXT,
					error TEXT,
					latency_ms BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_delivery_log_trigger ON delivery_log(trigger_id);
			`,
		},
	}
}
