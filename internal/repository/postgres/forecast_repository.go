package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var forecastColumns = []string{
	"id", "product_id", "algorithm", "horizon", "forecast_values", "period_start",
	"total_demand", "rmse", "mae", "mape", "confidence", "quality", "metrics_source",
	"justification", "preprocessing", "seasonally_adjusted", "generated_at",
}

var optimizationColumns = []string{
	"product_id", "forecast_id", "eoq", "rop", "safety_stock", "annual_demand",
	"daily_demand", "demand_stddev", "service_level", "num_orders_per_year",
	"days_between_orders", "total_annual_cost", "annual_purchase_cost",
	"lead_time_days", "recommendation", "generated_at",
}

type forecastRow struct {
	domain.Forecast
	Values pq.Float64Array `db:"forecast_values"`
}

func (row forecastRow) toDomain() *domain.Forecast {
	f := row.Forecast
	f.Values = []float64(row.Values)
	return &f
}

// forecastRepository persists forecasts and the optimization results derived
// from them.
type forecastRepository struct {
	db *DB
}

func NewForecastRepository(db *DB) *forecastRepository {
	return &forecastRepository{db: db}
}

// UpsertForecast replaces the (product, algorithm, horizon) row and prunes
// the product's history in one transaction.
func (r *forecastRepository) UpsertForecast(ctx context.Context, f *domain.Forecast, retain int) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO forecasts (
				product_id, algorithm, horizon, forecast_values, period_start,
				total_demand, rmse, mae, mape, confidence, quality, metrics_source,
				justification, preprocessing, seasonally_adjusted, generated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (product_id, algorithm, horizon)
			DO UPDATE SET
				forecast_values = EXCLUDED.forecast_values,
				period_start = EXCLUDED.period_start,
				total_demand = EXCLUDED.total_demand,
				rmse = EXCLUDED.rmse,
				mae = EXCLUDED.mae,
				mape = EXCLUDED.mape,
				confidence = EXCLUDED.confidence,
				quality = EXCLUDED.quality,
				metrics_source = EXCLUDED.metrics_source,
				justification = EXCLUDED.justification,
				preprocessing = EXCLUDED.preprocessing,
				seasonally_adjusted = EXCLUDED.seasonally_adjusted,
				generated_at = EXCLUDED.generated_at
			RETURNING id
		`

		err := tx.QueryRowContext(ctx, query,
			f.ProductID, string(f.Algorithm), f.Horizon, pq.Float64Array(f.Values), f.PeriodStart,
			f.TotalDemand, f.RMSE, f.MAE, f.MAPE, f.Confidence, string(f.Quality), f.MetricsSource,
			f.Justification, f.Preprocessing, f.SeasonallyAdjusted, f.GeneratedAt,
		).Scan(&f.ID)
		if err != nil {
			return fmt.Errorf("failed to upsert forecast for product %d: %w", f.ProductID, err)
		}

		if retain <= 0 {
			return nil
		}
		prune := `
			DELETE FROM forecasts
			WHERE product_id = $1
			  AND id NOT IN (
				SELECT id FROM forecasts
				WHERE product_id = $1
				ORDER BY generated_at DESC, id DESC
				LIMIT $2
			  )
		`
		if _, err := tx.ExecContext(ctx, prune, f.ProductID, retain); err != nil {
			return fmt.Errorf("failed to prune forecasts for product %d: %w", f.ProductID, err)
		}
		return nil
	})
}

func (r *forecastRepository) GetForecast(ctx context.Context, id int64) (*domain.Forecast, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(forecastColumns...)
	sb.From("forecasts")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row forecastRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, args...); err != nil {
		return nil, notFound(err, "forecast %d", id)
	}
	return row.toDomain(), nil
}

func (r *forecastRepository) GetLatestForecast(ctx context.Context, productID int64) (*domain.Forecast, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(forecastColumns...)
	sb.From("forecasts")
	sb.Where(sb.Equal("product_id", productID))
	sb.OrderBy("generated_at DESC", "id DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var row forecastRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, args...); err != nil {
		return nil, notFound(err, "forecast for product %d", productID)
	}
	return row.toDomain(), nil
}

func (r *forecastRepository) ListStaleForecasts(ctx context.Context, cutoff time.Time) ([]*domain.Forecast, error) {
	latest := sqlbuilder.PostgreSQL.NewSelectBuilder()
	latest.Select(append([]string{"DISTINCT ON (product_id) id"}, forecastColumns[1:]...)...)
	latest.From("forecasts")
	latest.OrderBy("product_id", "generated_at DESC", "id DESC")

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(forecastColumns...)
	sb.From(sb.BuilderAs(latest, "latest"))
	sb.Where(sb.LessThan("generated_at", cutoff))
	sb.OrderBy("product_id")

	query, args := sb.Build()
	var rows []forecastRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list stale forecasts: %w", err)
	}

	out := make([]*domain.Forecast, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *forecastRepository) SaveOptimization(ctx context.Context, res *domain.OptimizationResult) error {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("optimization_results")
	ib.Cols(optimizationColumns...)
	ib.Values(
		res.ProductID, res.ForecastID, res.EOQ, res.ROP, res.SafetyStock, res.AnnualDemand,
		res.DailyDemand, res.DemandStdDev, res.ServiceLevel, res.NumOrdersPerYear,
		res.DaysBetweenOrders, res.TotalAnnualCost, res.AnnualPurchaseCost,
		res.LeadTimeDays, res.Recommendation, res.GeneratedAt,
	)
	ib.SQL("RETURNING id")

	query, args := ib.Build()
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&res.ID); err != nil {
		return fmt.Errorf("failed to save optimization for product %d: %w", res.ProductID, err)
	}
	return nil
}

func (r *forecastRepository) GetLatestOptimization(ctx context.Context, productID int64) (*domain.OptimizationResult, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cols := append([]string{"id"}, optimizationColumns...)
	cols[2] = "COALESCE(forecast_id, 0) AS forecast_id"
	sb.Select(cols...)
	sb.From("optimization_results")
	sb.Where(sb.Equal("product_id", productID))
	sb.OrderBy("generated_at DESC", "id DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var res domain.OptimizationResult
	if err := sqlx.GetContext(ctx, r.db, &res, query, args...); err != nil {
		return nil, notFound(err, "optimization for product %d", productID)
	}
	return &res, nil
}
