package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetads/internal/model"
	"fleetads/internal/slots"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every .sql file in dir in lexical order (dev helper; a
// real deployment would use a migration tool).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		raw, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(raw)); err != nil {
			return fmt.Errorf("migrate %s: %w", n, err)
		}
	}
	return nil
}

func (p *Postgres) CreateCity(ctx context.Context, name string) (model.City, error) {
	c := model.City{ID: uuid.New().String(), Name: name, IsActive: true, CreatedAt: time.Now().UTC()}
	_, err := p.db.ExecContext(ctx, `INSERT INTO cities (id, name, is_active, created_at) VALUES ($1,$2,$3,$4)`,
		c.ID, c.Name, c.IsActive, c.CreatedAt)
	if err != nil {
		return model.City{}, err
	}
	return c, nil
}

func (p *Postgres) ListCities(ctx context.Context) ([]model.City, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, name, is_active, created_at FROM cities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.City{}
	for rows.Next() {
		var c model.City
		if err := rows.Scan(&c.ID, &c.Name, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const routeCols = `id::text, city_id::text, name, COALESCE(description,''), COALESCE(truck_id::text,''), is_active, created_at`

func scanRoute(row interface{ Scan(...any) error }) (model.Route, error) {
	var r model.Route
	err := row.Scan(&r.ID, &r.CityID, &r.Name, &r.Description, &r.TruckID, &r.IsActive, &r.CreatedAt)
	return r, err
}

func (p *Postgres) GetRoute(ctx context.Context, id string) (model.Route, error) {
	r, err := scanRoute(p.db.QueryRowContext(ctx, `SELECT `+routeCols+` FROM routes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Route{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRoutes(ctx context.Context, cityID string) ([]model.Route, error) {
	q := `SELECT ` + routeCols + ` FROM routes ORDER BY name`
	args := []any{}
	if cityID != "" {
		q = `SELECT ` + routeCols + ` FROM routes WHERE city_id=$1 ORDER BY name`
		args = append(args, cityID)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Route{}
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateRoute(ctx context.Context, cityID, name, description string) (model.Route, model.Truck, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Route{}, model.Truck{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists string
	if err := tx.QueryRowContext(ctx, `SELECT id::text FROM cities WHERE id=$1`, cityID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Route{}, model.Truck{}, ErrNotFound
		}
		return model.Route{}, model.Truck{}, err
	}
	now := time.Now().UTC()
	t := model.Truck{
		ID:           uuid.New().String(),
		ControllerID: fmt.Sprintf("TRUCK_%d", now.UnixNano()),
		Status:       model.TruckOffline,
		IsActive:     true,
	}
	r := model.Route{ID: uuid.New().String(), CityID: cityID, Name: name, Description: description, TruckID: t.ID, IsActive: true, CreatedAt: now}
	t.RouteID = r.ID
	if _, err := tx.ExecContext(ctx, `INSERT INTO trucks (id, controller_id, status, is_active) VALUES ($1,$2,$3,TRUE)`,
		t.ID, t.ControllerID, t.Status); err != nil {
		return model.Route{}, model.Truck{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO routes (id, city_id, name, description, truck_id, is_active, created_at) VALUES ($1,$2,$3,$4,$5,TRUE,$6)`,
		r.ID, cityID, name, nullIfEmpty(description), t.ID, now); err != nil {
		return model.Route{}, model.Truck{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE trucks SET route_id=$1 WHERE id=$2`, r.ID, t.ID); err != nil {
		return model.Route{}, model.Truck{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Route{}, model.Truck{}, err
	}
	return r, t, nil
}

const truckCols = `id::text, COALESCE(route_id::text,''), controller_id, status, last_heartbeat_at, uptime_seconds, last_ad_playback_at, gps_lat, gps_lng, gps_at, is_active`

func scanTruck(row interface{ Scan(...any) error }) (model.Truck, error) {
	var t model.Truck
	var hb, pb, gpsAt sql.NullTime
	var lat, lng sql.NullFloat64
	err := row.Scan(&t.ID, &t.RouteID, &t.ControllerID, &t.Status, &hb, &t.UptimeSeconds, &pb, &lat, &lng, &gpsAt, &t.IsActive)
	if err != nil {
		return model.Truck{}, err
	}
	if hb.Valid {
		t.LastHeartbeatAt = &hb.Time
	}
	if pb.Valid {
		t.LastAdPlaybackAt = &pb.Time
	}
	if lat.Valid && lng.Valid {
		t.GPS = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
		if gpsAt.Valid {
			t.GPS.Timestamp = &gpsAt.Time
		}
	}
	return t, nil
}

func (p *Postgres) GetTruck(ctx context.Context, id string) (model.Truck, error) {
	t, err := scanTruck(p.db.QueryRowContext(ctx, `SELECT `+truckCols+` FROM trucks WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Truck{}, ErrNotFound
	}
	return t, err
}

func (p *Postgres) ListTrucks(ctx context.Context) ([]model.Truck, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+truckCols+` FROM trucks ORDER BY controller_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Truck{}
	for rows.Next() {
		t, err := scanTruck(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) RecordHeartbeat(ctx context.Context, truckID string, hb model.Heartbeat) (model.Truck, error) {
	var lat, lng, gpsAt any
	if hb.GPS != nil {
		lat, lng = hb.GPS.Lat, hb.GPS.Lng
		if hb.GPS.Timestamp != nil {
			gpsAt = *hb.GPS.Timestamp
		}
	}
	var pb any
	if hb.LastAdPlaybackAt != nil {
		pb = *hb.LastAdPlaybackAt
	}
	res, err := p.db.ExecContext(ctx, `UPDATE trucks SET status=$1, last_heartbeat_at=now(), uptime_seconds=$2,
		last_ad_playback_at=COALESCE($3, last_ad_playback_at),
		gps_lat=COALESCE($4, gps_lat), gps_lng=COALESCE($5, gps_lng), gps_at=COALESCE($6, gps_at)
		WHERE id=$7`,
		hb.Status, hb.UptimeSeconds, pb, lat, lng, gpsAt, truckID)
	if err != nil {
		return model.Truck{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Truck{}, ErrNotFound
	}
	return p.GetTruck(ctx, truckID)
}

func (p *Postgres) CreateAsset(ctx context.Context, a model.Asset) (model.Asset, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `INSERT INTO assets (id, owner_id, url, duration_sec, checksum, validated, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.OwnerID, a.URL, a.DurationSec, nullIfEmpty(a.Checksum), a.Validated, a.CreatedAt)
	if err != nil {
		return model.Asset{}, err
	}
	return a, nil
}

func (p *Postgres) GetAsset(ctx context.Context, id string) (model.Asset, error) {
	var a model.Asset
	err := p.db.QueryRowContext(ctx, `SELECT id::text, owner_id, url, duration_sec, COALESCE(checksum,''), validated, created_at FROM assets WHERE id=$1`, id).
		Scan(&a.ID, &a.OwnerID, &a.URL, &a.DurationSec, &a.Checksum, &a.Validated, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Asset{}, ErrNotFound
	}
	return a, err
}

const campaignCols = `id::text, advertiser_id, route_id::text, truck_id::text, asset_id::text, package, start_date, end_date, status, payment_status, COALESCE(rejection_reason,''), COALESCE(approved_by,''), approved_at, created_at`

func scanCampaign(row interface{ Scan(...any) error }) (model.Campaign, error) {
	var c model.Campaign
	var approvedAt sql.NullTime
	err := row.Scan(&c.ID, &c.AdvertiserID, &c.RouteID, &c.TruckID, &c.AssetID, &c.Package,
		&c.StartDate, &c.EndDate, &c.Status, &c.PaymentStatus, &c.RejectionReason, &c.ApprovedBy, &approvedAt, &c.CreatedAt)
	if err != nil {
		return model.Campaign{}, err
	}
	if approvedAt.Valid {
		c.ApprovedAt = &approvedAt.Time
	}
	c.StartDate = model.DayUTC(c.StartDate)
	c.EndDate = model.DayUTC(c.EndDate)
	return c, nil
}

// overlappingTx fetches approved/live campaigns on routeID intersecting
// [from, to] ordered by end date, inside the caller's transaction so the
// result is stable under the route row lock.
func overlappingTx(ctx context.Context, tx *sql.Tx, routeID string, from, to time.Time) ([]model.Campaign, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+campaignCols+` FROM campaigns
		WHERE route_id=$1 AND status IN ('approved','live') AND start_date <= $2 AND end_date >= $3
		ORDER BY end_date ASC, created_at ASC`, routeID, to, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) ReserveCampaign(ctx context.Context, c model.Campaign) (model.Campaign, error) {
	days, ok := slots.PackageDays(c.Package)
	if !ok {
		return model.Campaign{}, fmt.Errorf("unknown package %q", c.Package)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Campaign{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the route row: serializes all reservations and approvals per route.
	var truckID sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT truck_id::text FROM routes WHERE id=$1 FOR UPDATE`, c.RouteID).Scan(&truckID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Campaign{}, ErrNotFound
		}
		return model.Campaign{}, err
	}
	c.TruckID = truckID.String
	c.StartDate = model.DayUTC(c.StartDate)
	conflicts, err := overlappingTx(ctx, tx, c.RouteID, c.StartDate, slots.ScanEnd(c.StartDate, days))
	if err != nil {
		return model.Campaign{}, err
	}
	avail := slots.Evaluate(c.StartDate, conflicts)
	if !avail.Available {
		return model.Campaign{}, &NoSlotError{Availability: avail}
	}
	c.ID = uuid.New().String()
	c.EndDate = slots.EndDate(c.StartDate, days)
	c.Status = model.CampaignPending
	c.PaymentStatus = model.PaymentPending
	c.CreatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `INSERT INTO campaigns
		(id, advertiser_id, route_id, truck_id, asset_id, package, start_date, end_date, status, payment_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.AdvertiserID, c.RouteID, c.TruckID, c.AssetID, c.Package, c.StartDate, c.EndDate, c.Status, c.PaymentStatus, c.CreatedAt)
	if err != nil {
		return model.Campaign{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Campaign{}, err
	}
	return c, nil
}

func (p *Postgres) GetCampaign(ctx context.Context, id string) (model.Campaign, error) {
	c, err := scanCampaign(p.db.QueryRowContext(ctx, `SELECT `+campaignCols+` FROM campaigns WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Campaign{}, ErrNotFound
	}
	return c, err
}

func (p *Postgres) ListCampaignsByAdvertiser(ctx context.Context, advertiserID string) ([]model.Campaign, error) {
	return p.queryCampaigns(ctx, `SELECT `+campaignCols+` FROM campaigns WHERE advertiser_id=$1 ORDER BY created_at DESC`, advertiserID)
}

func (p *Postgres) ListCampaignsByStatus(ctx context.Context, status string, page, limit int) ([]model.Campaign, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if page <= 0 {
		page = 1
	}
	var total int
	var err error
	if status != "" {
		err = p.db.QueryRowContext(ctx, `SELECT count(*) FROM campaigns WHERE status=$1`, status).Scan(&total)
	} else {
		err = p.db.QueryRowContext(ctx, `SELECT count(*) FROM campaigns`).Scan(&total)
	}
	if err != nil {
		return nil, 0, err
	}
	var items []model.Campaign
	if status != "" {
		items, err = p.queryCampaigns(ctx, `SELECT `+campaignCols+` FROM campaigns WHERE status=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			status, limit, (page-1)*limit)
	} else {
		items, err = p.queryCampaigns(ctx, `SELECT `+campaignCols+` FROM campaigns ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, (page-1)*limit)
	}
	return items, total, err
}

func (p *Postgres) ApproveCampaign(ctx context.Context, id string, startDate time.Time, approver string) (model.Campaign, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Campaign{}, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := scanCampaign(tx.QueryRowContext(ctx, `SELECT `+campaignCols+` FROM campaigns WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Campaign{}, ErrNotFound
	}
	if err != nil {
		return model.Campaign{}, err
	}
	if c.Status != model.CampaignPending {
		return model.Campaign{}, ErrNotPending
	}
	days, ok := slots.PackageDays(c.Package)
	if !ok {
		return model.Campaign{}, fmt.Errorf("unknown package %q", c.Package)
	}
	var routeID string
	if err := tx.QueryRowContext(ctx, `SELECT id::text FROM routes WHERE id=$1 FOR UPDATE`, c.RouteID).Scan(&routeID); err != nil {
		return model.Campaign{}, err
	}
	startDate = model.DayUTC(startDate)
	conflicts, err := overlappingTx(ctx, tx, c.RouteID, startDate, slots.ScanEnd(startDate, days))
	if err != nil {
		return model.Campaign{}, err
	}
	avail := slots.Evaluate(startDate, conflicts)
	if !avail.Available {
		return model.Campaign{}, &NoSlotError{Availability: avail}
	}
	now := time.Now().UTC()
	c.Status = model.CampaignApproved
	c.StartDate = startDate
	c.EndDate = slots.EndDate(startDate, days)
	c.ApprovedBy = approver
	c.ApprovedAt = &now
	_, err = tx.ExecContext(ctx, `UPDATE campaigns SET status='approved', start_date=$1, end_date=$2, approved_by=$3, approved_at=$4 WHERE id=$5`,
		c.StartDate, c.EndDate, approver, now, id)
	if err != nil {
		return model.Campaign{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Campaign{}, err
	}
	return c, nil
}

func (p *Postgres) RejectCampaign(ctx context.Context, id, reason, approver string) (model.Campaign, error) {
	now := time.Now().UTC()
	res, err := p.db.ExecContext(ctx, `UPDATE campaigns SET status='rejected', rejection_reason=$1, approved_by=$2, approved_at=$3 WHERE id=$4 AND status='pending'`,
		reason, approver, now, id)
	if err != nil {
		return model.Campaign{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish missing from wrong state for the caller.
		if _, err := p.GetCampaign(ctx, id); errors.Is(err, ErrNotFound) {
			return model.Campaign{}, ErrNotFound
		}
		return model.Campaign{}, ErrNotPending
	}
	return p.GetCampaign(ctx, id)
}

func (p *Postgres) DeleteCampaignsByRoute(ctx context.Context, routeID string, from, to *time.Time) (int, error) {
	q := `DELETE FROM campaigns WHERE route_id=$1`
	args := []any{routeID}
	if from != nil {
		args = append(args, model.DayUTC(*from))
		q += fmt.Sprintf(` AND start_date >= $%d`, len(args))
	}
	if to != nil {
		args = append(args, model.DayUTC(*to))
		q += fmt.Sprintf(` AND start_date <= $%d`, len(args))
	}
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *Postgres) SweepCampaignStatuses(ctx context.Context, now time.Time) (int, int, error) {
	today := model.DayUTC(now)
	res, err := p.db.ExecContext(ctx, `UPDATE campaigns SET status='expired' WHERE status IN ('approved','live') AND end_date < $1`, today)
	if err != nil {
		return 0, 0, err
	}
	expired, _ := res.RowsAffected()
	res, err = p.db.ExecContext(ctx, `UPDATE campaigns SET status='live' WHERE status='approved' AND start_date <= $1 AND end_date >= $1`, today)
	if err != nil {
		return 0, int(expired), err
	}
	live, _ := res.RowsAffected()
	return int(live), int(expired), nil
}

func (p *Postgres) ListCampaignsOverlapping(ctx context.Context, routeID string, from, to time.Time, statuses []string) ([]model.Campaign, error) {
	ph := make([]string, len(statuses))
	args := []any{routeID, model.DayUTC(to), model.DayUTC(from)}
	for i, s := range statuses {
		args = append(args, s)
		ph[i] = fmt.Sprintf("$%d", len(args))
	}
	return p.queryCampaigns(ctx, `SELECT `+campaignCols+` FROM campaigns
		WHERE route_id=$1 AND start_date <= $2 AND end_date >= $3 AND status IN (`+strings.Join(ph, ",")+`)
		ORDER BY end_date ASC, created_at ASC`, args...)
}

func (p *Postgres) ListActiveCampaigns(ctx context.Context, routeID string, asOf time.Time) ([]model.Campaign, error) {
	return p.queryCampaigns(ctx, `SELECT `+campaignCols+` FROM campaigns
		WHERE route_id=$1 AND status IN ('approved','live') AND end_date >= $2
		ORDER BY end_date ASC`, routeID, model.DayUTC(asOf))
}

func (p *Postgres) ListCampaignsForTruckOnDate(ctx context.Context, truckID string, date time.Time) ([]model.Campaign, error) {
	day := model.DayUTC(date)
	return p.queryCampaigns(ctx, `SELECT `+campaignCols+` FROM campaigns
		WHERE truck_id=$1 AND status IN ('approved','live') AND start_date <= $2 AND end_date >= $2
		ORDER BY created_at ASC, id ASC`, truckID, day)
}

func (p *Postgres) queryCampaigns(ctx context.Context, q string, args ...any) ([]model.Campaign, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertPlaylist(ctx context.Context, pl model.Playlist) (model.Playlist, error) {
	pl.Date = model.DayUTC(pl.Date)
	items, err := json.Marshal(pl.Items)
	if err != nil {
		return model.Playlist{}, err
	}
	newID := uuid.New().String()
	// Single-statement upsert keeps the item-list replacement atomic.
	err = p.db.QueryRowContext(ctx, `INSERT INTO playlists (id, truck_id, date, version, items, push_status, is_active, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (truck_id, date) DO UPDATE SET
			version=EXCLUDED.version, items=EXCLUDED.items, push_status=EXCLUDED.push_status,
			is_active=EXCLUDED.is_active, pushed_at=NULL, updated_at=now()
		RETURNING id::text, updated_at`,
		newID, pl.TruckID, pl.Date, pl.Version, items, pl.PushStatus, pl.IsActive).Scan(&pl.ID, &pl.UpdatedAt)
	if err != nil {
		return model.Playlist{}, err
	}
	return pl, nil
}

const playlistCols = `id::text, truck_id::text, date, version, items, push_status, pushed_at, is_active, updated_at`

func scanPlaylist(row interface{ Scan(...any) error }) (model.Playlist, error) {
	var pl model.Playlist
	var items []byte
	var pushedAt sql.NullTime
	err := row.Scan(&pl.ID, &pl.TruckID, &pl.Date, &pl.Version, &items, &pl.PushStatus, &pushedAt, &pl.IsActive, &pl.UpdatedAt)
	if err != nil {
		return model.Playlist{}, err
	}
	if pushedAt.Valid {
		pl.PushedAt = &pushedAt.Time
	}
	pl.Date = model.DayUTC(pl.Date)
	pl.Items = []model.PlaylistItem{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &pl.Items); err != nil {
			return model.Playlist{}, err
		}
	}
	return pl, nil
}

func (p *Postgres) GetPlaylist(ctx context.Context, truckID string, date time.Time) (model.Playlist, error) {
	pl, err := scanPlaylist(p.db.QueryRowContext(ctx, `SELECT `+playlistCols+` FROM playlists WHERE truck_id=$1 AND date=$2`,
		truckID, model.DayUTC(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Playlist{}, ErrNotFound
	}
	return pl, err
}

func (p *Postgres) GetPlaylistByID(ctx context.Context, id string) (model.Playlist, error) {
	pl, err := scanPlaylist(p.db.QueryRowContext(ctx, `SELECT `+playlistCols+` FROM playlists WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Playlist{}, ErrNotFound
	}
	return pl, err
}

func (p *Postgres) MarkPlaylistPushed(ctx context.Context, id string) (model.Playlist, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE playlists SET push_status='pushed', pushed_at=now(), updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return model.Playlist{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Playlist{}, ErrNotFound
	}
	return p.GetPlaylistByID(ctx, id)
}

func (p *Postgres) PlaylistStats(ctx context.Context) (model.PlaylistStats, error) {
	st := model.PlaylistStats{ByStatus: map[string]int{}}
	rows, err := p.db.QueryContext(ctx, `SELECT push_status, count(*), count(*) FILTER (WHERE is_active) FROM playlists GROUP BY push_status`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n, active int
		if err := rows.Scan(&status, &n, &active); err != nil {
			return st, err
		}
		st.ByStatus[status] = n
		st.Total += n
		st.Active += active
		if status == model.PushPending {
			st.Pending = n
		}
	}
	return st, rows.Err()
}

func (p *Postgres) DashboardStats(ctx context.Context, now time.Time) (map[string]any, error) {
	today := model.DayUTC(now)
	tomorrow := today.AddDate(0, 0, 1)
	var total, pending, active, expiring, trucks, online, assets, playlists int
	err := p.db.QueryRowContext(ctx, `SELECT
		(SELECT count(*) FROM campaigns),
		(SELECT count(*) FROM campaigns WHERE status='pending'),
		(SELECT count(*) FROM campaigns WHERE status IN ('approved','live')),
		(SELECT count(*) FROM campaigns WHERE status IN ('approved','live') AND end_date BETWEEN $1 AND $2),
		(SELECT count(*) FROM trucks),
		(SELECT count(*) FROM trucks WHERE status='online'),
		(SELECT count(*) FROM assets),
		(SELECT count(*) FROM playlists)`,
		today, tomorrow).Scan(&total, &pending, &active, &expiring, &trucks, &online, &assets, &playlists)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"campaigns": map[string]int{"total": total, "pending": pending, "active": active, "expiring": expiring},
		"trucks":    map[string]int{"total": trucks, "online": online, "offline": trucks - online},
		"assets":    map[string]int{"total": assets},
		"playlists": map[string]int{"total": playlists},
	}, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*Postgres)(nil)
