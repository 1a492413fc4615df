package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ccoveille/go-safecast"
	"github.com/tessera-cash/wallet-sdk/types"
)

type cursorStore struct {
	db *sql.DB
}

func NewCursorStore(db *sql.DB) types.CursorStore {
	return &cursorStore{db: db}
}

func (s *cursorStore) SetCursor(
	ctx context.Context, address string, sequence uint64,
) error {
	seq, err := safecast.ToInt64(sequence)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO sync_cursor (address, sequence) VALUES (?, ?)
		ON CONFLICT (address) DO UPDATE SET sequence = excluded.sequence`,
		address, seq,
	)
	return err
}

func (s *cursorStore) GetCursor(ctx context.Context, address string) (uint64, error) {
	row := s.db.QueryRowContext(
		ctx, `SELECT sequence FROM sync_cursor WHERE address = ?`, address,
	)
	var seq int64
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return safecast.ToUint64(seq)
}

func (s *cursorStore) Clean(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_cursor`)
	return err
}

func (s *cursorStore) Close() {}
