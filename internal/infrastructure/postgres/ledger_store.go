package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jhoicas/grocy-autobuy/internal/domain/entity"
	"github.com/jhoicas/grocy-autobuy/internal/domain/repository"
)

var _ repository.LedgerStore = (*LedgerStore)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS autobuy_ledger_meta (
	id            SMALLINT PRIMARY KEY CHECK (id = 1),
	counter_date  TEXT        NOT NULL DEFAULT '',
	orders_placed INTEGER     NOT NULL DEFAULT 0,
	history       JSONB       NOT NULL DEFAULT '[]'::jsonb,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
INSERT INTO autobuy_ledger_meta (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
CREATE TABLE IF NOT EXISTS autobuy_pending_deliveries (
	product_id     TEXT PRIMARY KEY,
	product_name   TEXT        NOT NULL DEFAULT '',
	stock_at_order NUMERIC     NOT NULL,
	packages       INTEGER     NOT NULL,
	ordered_at     TIMESTAMPTZ NOT NULL
);`

// LedgerStore persiste el ledger en PostgreSQL. Las escrituras toman un lock de fila
// sobre autobuy_ledger_meta, así varios procesos comparten el mismo ledger sin pisarse.
type LedgerStore struct {
	pool *pgxpool.Pool
	tx   *TxRunner
	log  zerolog.Logger
}

// NewLedgerStore construye el adaptador.
func NewLedgerStore(pool *pgxpool.Pool, log zerolog.Logger) *LedgerStore {
	return &LedgerStore{pool: pool, tx: NewTxRunner(pool), log: log}
}

// EnsureSchema crea las tablas si no existen.
func (s *LedgerStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("crear esquema del ledger: %w", err)
	}
	return nil
}

// Load lee el estado completo; contador, historial y entregas salen del mismo snapshot.
func (s *LedgerStore) Load(ctx context.Context) (*entity.LedgerState, error) {
	var state *entity.LedgerState
	err := s.tx.ReadSnapshot(ctx, func(tx pgx.Tx) error {
		var err error
		state, err = s.read(ctx, tx, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Update ejecuta load-mutate-save dentro de una transacción con SELECT ... FOR UPDATE.
func (s *LedgerStore) Update(ctx context.Context, fn func(state *entity.LedgerState) error) error {
	err := s.tx.Run(ctx, func(tx pgx.Tx) error {
		state, err := s.read(ctx, tx, true)
		if err != nil {
			return err
		}
		if err := fn(state); err != nil {
			return err
		}
		return s.write(ctx, tx, state)
	})
	if errors.Is(err, repository.ErrUnchanged) {
		return nil
	}
	return err
}

func (s *LedgerStore) read(ctx context.Context, q Querier, forUpdate bool) (*entity.LedgerState, error) {
	query := `SELECT counter_date, orders_placed, history, updated_at FROM autobuy_ledger_meta WHERE id = 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	state := entity.NewLedgerState()
	var history []byte
	err := q.QueryRow(ctx, query).Scan(
		&state.DailyCounter.Date, &state.DailyCounter.OrdersPlaced, &history, &state.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leer ledger: %w", err)
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &state.Orders); err != nil {
			s.log.Warn().Err(err).Msg("historial de pedidos corrupto, se descarta")
			state.Orders = nil
		}
	}

	rows, err := q.Query(ctx, `
		SELECT product_id, product_name, stock_at_order, packages, ordered_at
		FROM autobuy_pending_deliveries`)
	if err != nil {
		return nil, fmt.Errorf("leer entregas pendientes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d entity.PendingDelivery
		if err := rows.Scan(&d.ProductID, &d.ProductName, &d.StockAtOrder, &d.Packages, &d.OrderedAt); err != nil {
			return nil, fmt.Errorf("scan entrega pendiente: %w", err)
		}
		state.PendingDeliveries[d.ProductID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leer entregas pendientes: %w", err)
	}
	return state, nil
}

func (s *LedgerStore) write(ctx context.Context, tx pgx.Tx, state *entity.LedgerState) error {
	history, err := json.Marshal(state.Orders)
	if err != nil {
		return fmt.Errorf("serializar historial: %w", err)
	}
	if state.Orders == nil {
		history = []byte("[]")
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM autobuy_pending_deliveries`)
	for _, d := range state.PendingDeliveries {
		batch.Queue(`
			INSERT INTO autobuy_pending_deliveries (product_id, product_name, stock_at_order, packages, ordered_at)
			VALUES ($1, $2, $3, $4, $5)`,
			d.ProductID, d.ProductName, d.StockAtOrder, d.Packages, d.OrderedAt)
	}
	batch.Queue(`
		INSERT INTO autobuy_ledger_meta (id, counter_date, orders_placed, history, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			counter_date = EXCLUDED.counter_date,
			orders_placed = EXCLUDED.orders_placed,
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at`,
		state.DailyCounter.Date, state.DailyCounter.OrdersPlaced, history, time.Now().UTC())

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("guardar ledger: %w", err)
	}
	return nil
}
