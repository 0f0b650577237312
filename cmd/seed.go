package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jmehdipour/zoohub/internal/config"
	"github.com/jmehdipour/zoohub/internal/db"
	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmehdipour/zoohub/internal/util"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo producers and rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo producers...")
		if err := seedProducers(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seeding demo rules...")
		if err := seedRules(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedProducers inserts deterministic demo producers (idempotent).
func seedProducers(dbx *sqlx.DB) error {
	producers := []model.Producer{
		{
			Name:         "Billing Service",
			APIKey:       "11111111111111111111111111111111",
			Status:       "active",
			RateLimitRPS: intptr(50),
		},
		{
			Name:         "Keeper App",
			APIKey:       "22222222222222222222222222222222",
			Status:       "active",
			RateLimitRPS: intptr(20),
		},
		{
			Name:         "Vet Portal",
			APIKey:       "33333333333333333333333333333333",
			Status:       "active",
			RateLimitRPS: intptr(5),
		},
		{
			Name:         "Suspended Feed",
			APIKey:       "44444444444444444444444444444444",
			Status:       "suspended",
			RateLimitRPS: nil,
		},
	}

	// idempotent upsert based on api_key (UNIQUE)
	const q = `
INSERT INTO producers
    (name, api_key, status, rate_limit_rps, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name        = VALUES(name),
    status      = VALUES(status),
    rate_limit_rps = VALUES(rate_limit_rps),
    updated_at  = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, p := range producers {
		if _, err := tx.Exec(q, p.Name, p.APIKey, p.Status, p.RateLimitRPS, now, now); err != nil {
			return fmt.Errorf("insert producer %q: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit producers: %w", err)
	}
	return nil
}

// seedRules inserts one demo rule with a webhook and an email action,
// unless a rule with the same name already exists.
func seedRules(dbx *sqlx.DB) error {
	var n int
	if err := dbx.Get(&n, `SELECT COUNT(*) FROM rules WHERE name = ?`, "payment failed alerts"); err != nil {
		return fmt.Errorf("check rules: %w", err)
	}
	if n > 0 {
		return nil
	}

	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ruleID := util.NewID()
	source := "billing-service"
	typ := "PAYMENT_FAILED"

	if _, err := tx.Exec(`
		INSERT INTO rules (id, name, enabled, match_source, match_type, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, NOW(), NOW())
	`, ruleID, "payment failed alerts", source, typ); err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}

	for i, a := range demoRuleActions {
		if _, err := tx.Exec(`
			INSERT INTO rule_actions (id, rule_id, kind, config, order_no)
			VALUES (?, ?, ?, ?, ?)
		`, util.NewID(), ruleID, a.kind, a.config, i); err != nil {
			return fmt.Errorf("insert rule action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rules: %w", err)
	}
	return nil
}

// demoRuleActions back the seeded "payment failed alerts" rule. The
// placeholders are top-level renderer context paths (type, subject.*,
// payload.*), not prefixed with an event root.
var demoRuleActions = []struct {
	kind   string
	config string
}{
	{
		kind:   "WEBHOOK",
		config: `{"url":"http://localhost:9090/hooks/payments","method":"POST","body":{"event":"{{type}}","subject":"{{subject.id}}","amount":"{{payload.amount}}"}}`,
	},
	{
		kind:   "EMAIL",
		config: `{"to":"finance@zoohub.local","subject":"Payment failed for {{subject.id}}","template":"Payment of {{payload.amount}} failed for {{subject.kind}} {{subject.id}}."}`,
	},
}

func intptr(i int) *int { return &i }
