package leads

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTTL = (3600 * 24 * 7) // 7 days

	defaultServiceName = "leads"
)

// Storage defines our API for lead records. Implementations: memStorage, dbStorage and cachedStorage (which wraps one of the other two)
type Storage interface {
	// GetAll returns every lead, newest (highest id) first
	GetAll(ctx context.Context) ([]*Lead, error)
	// Search is GetAll narrowed down by f; order is the same as GetAll
	Search(ctx context.Context, f Filter) ([]*Lead, error)

	// Get returns false if there is no lead with that id; that's not an error
	Get(ctx context.Context, id int64) (*Lead, bool, error)
	// Create assigns the next id and returns the stored lead
	Create(ctx context.Context, in Input) (*Lead, error)
	// Update merges p into the lead; false if the lead doesn't exist
	Update(ctx context.Context, id int64, p Patch) (*Lead, bool, error)
	// Delete returns true only if the lead existed
	Delete(ctx context.Context, id int64) (bool, error)

	/*
		Import creates every input in order and returns the leads in that same order.
		Inputs are expected to be validated already (see ParseImport); the store itself doesn't check them.
		The in-memory store can't fail half way through; the db store runs the whole batch in one transaction
	*/
	Import(ctx context.Context, ins []Input) ([]*Lead, error)
}

type Config struct {
	DB    *sqlx.DB              // nil means in-memory storage
	Redis redis.UniversalClient // nil means no cache

	CacheTTL    int    // time to live in seconds for cached leads; 0 = DefaultTTL
	ServiceName string // prefix of the cache keys e.g. `service:{ServiceName}|leads|id=1`

	Debugger bool // log every storage call at debug level
	Logger   *logrus.Entry
}

// New returns the storage described by conf. A nil conf is an in-memory storage with no cache
func New(conf *Config) (Storage, error) {
	if conf == nil {
		conf = &Config{}
	}

	l := newLogger(conf.Logger, conf.Debugger)

	var s Storage
	if conf.DB == nil {
		s = newMemStorage(l)
	} else {
		d, err := newDBStorage(conf.DB, l)
		if err != nil {
			return nil, err
		}
		s = d
	}

	if conf.Redis == nil {
		return s, nil
	}

	serviceName := conf.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	ttl := conf.CacheTTL
	if ttl < 0 {
		return nil, errors.New("CacheTTL cannot be negative")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return newCachedStorage(s, conf.Redis, serviceName, ttl, l), nil
}

// NewMemStorage is shorthand for an in-memory storage with no cache & no logging
func NewMemStorage() Storage {
	return newMemStorage(newLogger(nil, false))
}

// sampleLeads are the leads a fresh demo instance starts with
var sampleLeads = []Input{
	{
		Name:   "Karim El Mansouri",
		Email:  "karim.elmansouri@example.com",
		Phone:  "+212 612345678",
		Source: "Mubawab",
		Status: "New",
		Date:   "2025-04-20",
	},
	{
		Name:   "Fatima Zahra",
		Email:  "fatima.zahra@example.com",
		Phone:  "+212 698765432",
		Source: "Facebook",
		Status: "Contacted",
		Date:   "2025-04-19",
	},
}

// Seed imports the sample leads into s
func Seed(ctx context.Context, s Storage) ([]*Lead, error) {
	return s.Import(ctx, sampleLeads)
}
