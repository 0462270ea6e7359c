package snapstate

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore persists credentials in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get retrieves credentials by user address.
func (p *PostgresStore) Get(ctx context.Context, userAddress string) (*Credentials, error) {
	key := Key(userAddress)
	if key == "" {
		return nil, ErrInvalidAddress
	}

	c := &Credentials{}
	err := p.db.QueryRowContext(ctx, `
		SELECT user_address, public_key, message_signature, updated_at
		FROM snap_credentials WHERE user_address = $1
	`, key).Scan(&c.UserAddress, &c.PublicKey, &c.MessageSignature, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Put inserts or replaces the credentials for creds.UserAddress.
func (p *PostgresStore) Put(ctx context.Context, creds *Credentials) error {
	key := Key(creds.UserAddress)
	if key == "" {
		return ErrInvalidAddress
	}

	return p.db.QueryRowContext(ctx, `
		INSERT INTO snap_credentials (user_address, public_key, message_signature, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_address) DO UPDATE
		SET public_key = EXCLUDED.public_key,
		    message_signature = EXCLUDED.message_signature,
		    updated_at = NOW()
		RETURNING updated_at
	`, key, creds.PublicKey, creds.MessageSignature).Scan(&creds.UpdatedAt)
}

// Delete removes the credentials for userAddress.
func (p *PostgresStore) Delete(ctx context.Context, userAddress string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM snap_credentials WHERE user_address = $1`, Key(userAddress))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity for readiness probes.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
