package repository

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"CapIot.readings/internal/filter"
	"CapIot.readings/internal/models"
	"github.com/bwmarrin/snowflake"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"
)

const (
	measurement = "readings"
	// open upper bound of range(), the last whole second of int64 nanoseconds
	fluxMaxStop = "2262-04-11T23:47:16Z"
	// fluxMaxStop in Unix seconds. Points are stored strictly before it.
	fluxMaxUnix = math.MaxInt64 / int64(time.Second)
)

// InfluxDBRepository stores readings as points in a single InfluxDB bucket.
// Each point is tagged with its device, type and a snowflake reading_id, so
// two readings with the same timestamp never overwrite each other.
type InfluxDBRepository struct {
	client influxdb2.Client
	org    string
	bucket string
	ids    *snowflake.Node
	logger *zap.Logger
}

// NewInfluxDBRepository creates a new InfluxDBRepository. node seeds the
// snowflake generator and must be unique per running server.
func NewInfluxDBRepository(url, token, org, bucket string, node int64, logger *zap.Logger) (*InfluxDBRepository, error) {
	ids, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("creating id generator: %w", err)
	}
	return &InfluxDBRepository{
		client: influxdb2.NewClient(url, token),
		org:    org,
		bucket: bucket,
		ids:    ids,
		logger: logger,
	}, nil
}

// EnsureBucket creates the configured bucket when it does not exist yet.
func (r *InfluxDBRepository) EnsureBucket(ctx context.Context) error {
	exists, err := r.BucketExists(ctx, r.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	r.logger.Info("bucket does not exist, creating it", zap.String("bucket", r.bucket))
	return r.CreateBucket(ctx, r.bucket)
}

// BucketExists checks if a bucket exists in InfluxDB.
func (r *InfluxDBRepository) BucketExists(ctx context.Context, name string) (bool, error) {
	_, err := r.client.BucketsAPI().FindBucketByName(ctx, name)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, unavailable("checking bucket existence", err)
	}
	return true, nil
}

// CreateBucket creates a new bucket in InfluxDB.
func (r *InfluxDBRepository) CreateBucket(ctx context.Context, name string) error {
	org, err := r.client.OrganizationsAPI().FindOrganizationByName(ctx, r.org)
	if err != nil {
		return unavailable(fmt.Sprintf("finding organization %q", r.org), err)
	}
	if org == nil {
		return fmt.Errorf("organization %q not found", r.org)
	}
	if _, err := r.client.BucketsAPI().CreateBucketWithName(ctx, org, name); err != nil {
		return unavailable(fmt.Sprintf("creating bucket %q", name), err)
	}
	r.logger.Info("bucket created", zap.String("bucket", name))
	return nil
}

func (r *InfluxDBRepository) WithSession(ctx context.Context, fn func(Session) error) error {
	if err := ctx.Err(); err != nil {
		return unavailable("acquiring session", err)
	}
	return fn(&influxSession{
		repo:  r,
		write: r.client.WriteAPIBlocking(r.org, r.bucket),
		query: r.client.QueryAPI(r.org),
	})
}

func (r *InfluxDBRepository) Ping(ctx context.Context) error {
	health, err := r.client.Health(ctx)
	if err != nil {
		return unavailable("health check", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return unavailable("health check", fmt.Errorf("status %s: %s", health.Status, msg))
	}
	return nil
}

func (r *InfluxDBRepository) Close() error {
	r.client.Close()
	return nil
}

type influxSession struct {
	repo  *InfluxDBRepository
	write api.WriteAPIBlocking
	query api.QueryAPI
}

func (s *influxSession) Insert(ctx context.Context, r models.Reading) (models.Reading, error) {
	// point timestamps are int64 nanoseconds
	if r.DateCreated >= fluxMaxUnix {
		return models.Reading{}, models.Invalid(fmt.Sprintf("date_created must be less than %d on the InfluxDB store", fluxMaxUnix))
	}
	id := s.repo.ids.Generate().Int64()
	p := influxdb2.NewPoint(
		measurement,
		map[string]string{
			"device_uuid": r.DeviceUUID,
			"type":        string(r.Type),
			"reading_id":  strconv.FormatInt(id, 10),
		},
		map[string]interface{}{"value": int64(r.Value)},
		time.Unix(r.DateCreated, 0),
	)
	if err := s.write.WritePoint(ctx, p); err != nil {
		return models.Reading{}, unavailable("writing point", err)
	}
	r.ID = uint64(id)
	return r, nil
}

func (s *influxSession) QueryAll(ctx context.Context, p filter.Predicate) ([]models.Reading, error) {
	// range() rejects stop <= start, and nothing is stored past fluxMaxUnix
	if p.Unsatisfiable() || (p.Start != nil && *p.Start >= fluxMaxUnix) {
		return nil, nil
	}
	flux := buildFluxQuery(s.repo.bucket, p)
	s.repo.logger.Debug("executing flux query", zap.String("query", flux))

	result, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, unavailable("querying readings", err)
	}
	defer result.Close()

	var readings []models.Reading
	for result.Next() {
		record := result.Record()
		id, err := strconv.ParseUint(stringValue(record.ValueByKey("reading_id")), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decoding reading_id at %s: %w", record.Time(), err)
		}
		var value int
		switch v := record.Value().(type) {
		case int64:
			value = int(v)
		case float64:
			value = int(v)
		default:
			return nil, fmt.Errorf("unexpected value type %T for reading %d", v, id)
		}
		readings = append(readings, models.Reading{
			ID:          id,
			DeviceUUID:  stringValue(record.ValueByKey("device_uuid")),
			Type:        models.SensorType(stringValue(record.ValueByKey("type"))),
			Value:       value,
			DateCreated: record.Time().Unix(),
		})
	}
	if err := result.Err(); err != nil {
		return nil, unavailable("reading query result", err)
	}
	slices.SortFunc(readings, func(a, b models.Reading) int { return cmp.Compare(a.ID, b.ID) })
	return readings, nil
}

// buildFluxQuery renders p as a Flux query over bucket. Both range bounds are
// inclusive in p; Flux's stop is exclusive, hence end+1. An end at or past
// fluxMaxUnix leaves the range open.
func buildFluxQuery(bucket string, p filter.Predicate) string {
	start, stop := "0", fluxMaxStop
	if p.Start != nil {
		start = strconv.FormatInt(*p.Start, 10)
	}
	if p.End != nil && *p.End < fluxMaxUnix {
		stop = strconv.FormatInt(*p.End+1, 10)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", fluxString(bucket))
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n", start, stop)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %s and r._field == \"value\")\n", fluxString(measurement))
	if p.DeviceUUID != "" {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r.device_uuid == %s)\n", fluxString(p.DeviceUUID))
	}
	if p.Type != nil {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r.type == %s)\n", fluxString(string(*p.Type)))
	}
	b.WriteString("  |> keep(columns: [\"_time\", \"_value\", \"device_uuid\", \"type\", \"reading_id\"])\n")
	b.WriteString("  |> group()\n")
	return b.String()
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `${`, `\${`)

// fluxString quotes s as a Flux string literal.
func fluxString(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
