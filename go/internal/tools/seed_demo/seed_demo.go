package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/syncparty/go/internal/dbconfig"
	"github.com/mcdev12/syncparty/go/internal/parties"
	"github.com/mcdev12/syncparty/go/internal/schema"
)

const (
	demoPartyName   = "Demo Party"
	demoDeviceLabel = "Main Device"
)

// demoUserID is stable so reruns find the same party
var demoUserID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("syncparty:demo"))

func main() {
	ctx := context.Background()

	// 1) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 2) Make sure the tables exist
	if err := schema.Apply(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 3) Get or create the demo party with its playback state and main device
	code, created, err := seedDemo(ctx, pool)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed demo: %v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	status := "existing"
	if created {
		status = "created"
	}
	fmt.Printf("Demo party ready (%s): code=%s host=%s\n", status, code, demoUserID)
}

func seedDemo(ctx context.Context, pool *pgxpool.Pool) (string, bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback(ctx)

	var (
		partyID uuid.UUID
		code    string
		created bool
	)
	err = tx.QueryRow(ctx,
		`SELECT id, code FROM parties WHERE host_id = $1 AND name = $2 ORDER BY created_at LIMIT 1`,
		demoUserID, demoPartyName,
	).Scan(&partyID, &code)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		code, err = parties.GenerateCode()
		if err != nil {
			return "", false, err
		}
		partyID = uuid.New()
		if _, err := tx.Exec(ctx,
			`INSERT INTO parties (id, code, host_id, name) VALUES ($1, $2, $3, $4)`,
			partyID, code, demoUserID, demoPartyName,
		); err != nil {
			return "", false, fmt.Errorf("insert party: %w", err)
		}
		created = true
	case err != nil:
		return "", false, fmt.Errorf("find party: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO playback_states (party_id) VALUES ($1) ON CONFLICT (party_id) DO NOTHING`,
		partyID,
	); err != nil {
		return "", false, fmt.Errorf("insert playback state: %w", err)
	}

	if _, err := tx.Exec(ctx, `
            INSERT INTO party_devices (id, party_id, user_id, label, is_main_device)
            VALUES ($1, $2, $3, $4, TRUE)
            ON CONFLICT (party_id, user_id) DO NOTHING
        `,
		uuid.New(), partyID, demoUserID, demoDeviceLabel,
	); err != nil {
		return "", false, fmt.Errorf("insert main device: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", false, err
	}
	return code, created, nil
}
