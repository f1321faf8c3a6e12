package leads

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSqliteDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

// backends returns a fresh storage of every kind
func backends(t *testing.T) map[string]Storage {
	t.Helper()

	mem, err := New(nil)
	require.NoError(t, err)

	db, err := New(&Config{DB: newSqliteDB(t)})
	require.NoError(t, err)

	_, rdb := newRedis(t)
	cached, err := New(&Config{Redis: rdb, ServiceName: "test"})
	require.NoError(t, err)

	_, rdb2 := newRedis(t)
	cachedDB, err := New(&Config{DB: newSqliteDB(t), Redis: rdb2, ServiceName: "test"})
	require.NoError(t, err)

	return map[string]Storage{
		"memory":       mem,
		"sqlite":       db,
		"memory+redis": cached,
		"sqlite+redis": cachedDB,
	}
}

func sampleInput(i int) Input {
	return Input{
		Name:   fmt.Sprintf("Lead %d", i),
		Email:  fmt.Sprintf("lead%d@example.com", i),
		Phone:  fmt.Sprintf("+212 6000000%02d", i),
		Source: "Facebook",
		Status: "New",
		Date:   "2025-04-20",
	}
}

func strPtr(s string) *string {
	return &s
}

func TestStorage_GetAllEmpty(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			res, err := s.GetAll(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, res)
			assert.Empty(t, res)
		})
	}
}

func TestStorage_CreateThenGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			created, err := s.Create(ctx, sampleInput(1))
			require.NoError(t, err)
			assert.Equal(t, int64(1), created.ID)
			assert.Equal(t, "", created.Notes)
			assert.Equal(t, "Lead 1", created.Name)

			got, ok, err := s.Get(ctx, created.ID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, created, got)

			// changing what we got back must not change what's stored
			got.Name = "changed"
			again, ok, err := s.Get(ctx, created.ID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "Lead 1", again.Name)
		})
	}
}

func TestStorage_GetMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l, ok, err := s.Get(context.Background(), 42)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, l)
		})
	}
}

func TestStorage_GetAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i := 1; i <= 3; i++ {
				_, err := s.Create(ctx, sampleInput(i))
				require.NoError(t, err)
			}

			res, err := s.GetAll(ctx)
			require.NoError(t, err)
			require.Len(t, res, 3)
			assert.Equal(t, []int64{3, 2, 1}, []int64{res[0].ID, res[1].ID, res[2].ID})
		})
	}
}

func TestStorage_ImportKeepsOrder(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// something already in there so import doesn't start at 1
			_, err := s.Create(ctx, sampleInput(0))
			require.NoError(t, err)

			ins := []Input{}
			for i := 1; i <= 5; i++ {
				ins = append(ins, sampleInput(i))
			}

			res, err := s.Import(ctx, ins)
			require.NoError(t, err)
			require.Len(t, res, len(ins))

			for i, l := range res {
				assert.Equal(t, ins[i].Name, l.Name)
				assert.Equal(t, "", l.Notes)
				if i > 0 {
					assert.Greater(t, l.ID, res[i-1].ID)
				}
			}
			assert.Equal(t, int64(2), res[0].ID)

			all, err := s.GetAll(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 6)
		})
	}
}

func TestStorage_ImportEmpty(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			res, err := s.Import(context.Background(), nil)
			require.NoError(t, err)
			assert.Empty(t, res)
		})
	}
}

func TestStorage_DeleteOnce(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l, err := s.Create(ctx, sampleInput(1))
			require.NoError(t, err)

			ok, err := s.Delete(ctx, l.ID)
			require.NoError(t, err)
			assert.True(t, ok)

			for i := 0; i < 2; i++ {
				ok, err = s.Delete(ctx, l.ID)
				require.NoError(t, err)
				assert.False(t, ok)
			}

			_, found, err := s.Get(ctx, l.ID)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestStorage_IDsAreNeverReused(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(ctx, sampleInput(1))
			require.NoError(t, err)
			second, err := s.Create(ctx, sampleInput(2))
			require.NoError(t, err)

			ok, err := s.Delete(ctx, second.ID)
			require.NoError(t, err)
			require.True(t, ok)

			third, err := s.Create(ctx, sampleInput(3))
			require.NoError(t, err)
			assert.Equal(t, int64(3), third.ID)
		})
	}
}

func TestStorage_UpdateOnlyTouchesPatchedFields(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			before, err := s.Create(ctx, sampleInput(1))
			require.NoError(t, err)

			after, ok, err := s.Update(ctx, before.ID, Patch{Status: strPtr("Contacted")})
			require.NoError(t, err)
			require.True(t, ok)

			want := *before
			want.Status = "Contacted"
			assert.Equal(t, &want, after)

			got, ok, err := s.Get(ctx, before.ID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, &want, got)
		})
	}
}

func TestStorage_UpdateNotes(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l, err := s.Create(ctx, sampleInput(1))
			require.NoError(t, err)

			updated, ok, err := s.Update(ctx, l.ID, Patch{Notes: strPtr("call back on monday")})
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "call back on monday", updated.Notes)
			assert.Equal(t, l.ID, updated.ID)
		})
	}
}

func TestStorage_UpdateEmptyPatch(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l, err := s.Create(ctx, sampleInput(1))
			require.NoError(t, err)

			same, ok, err := s.Update(ctx, l.ID, Patch{})
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, l, same)
		})
	}
}

func TestStorage_UpdateMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l, ok, err := s.Update(context.Background(), 7, Patch{Status: strPtr("Qualified")})
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, l)
		})
	}
}

func TestStorage_Search(t *testing.T) {
	ctx := context.Background()
	ins := []Input{
		{Name: "Karim", Email: "Karim.E@Example.com", Phone: "+212 612345678", Source: "Mubawab", Status: "New", Date: "2025-04-20"},
		{Name: "Fatima", Email: "fatima@example.com", Phone: "+212 698765432", Source: "Facebook", Status: "Contacted", Date: "2025-04-19"},
		{Name: "Youssef", Email: "youssef_100%@mail.ma", Phone: "0600", Source: "facebook", Status: "new", Date: "2025-04-19"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "zero filter", filter: Filter{}, want: []string{"Youssef", "Fatima", "Karim"}},
		{name: "all is no filter", filter: Filter{Status: "all", Source: "ALL"}, want: []string{"Youssef", "Fatima", "Karim"}},
		{name: "status ignores case", filter: Filter{Status: "NEW"}, want: []string{"Youssef", "Karim"}},
		{name: "source ignores case", filter: Filter{Source: "Facebook"}, want: []string{"Youssef", "Fatima"}},
		{name: "email substring ignores case", filter: Filter{Email: "karim.e@"}, want: []string{"Karim"}},
		{name: "email wildcards are literal", filter: Filter{Email: "_100%"}, want: []string{"Youssef"}},
		{name: "phone substring", filter: Filter{Phone: "6987"}, want: []string{"Fatima"}},
		{name: "date exact", filter: Filter{Date: "2025-04-19"}, want: []string{"Youssef", "Fatima"}},
		{name: "combined", filter: Filter{Source: "facebook", Status: "contacted"}, want: []string{"Fatima"}},
		{name: "no match", filter: Filter{Phone: "999"}, want: []string{}},
	}

	for name, s := range backends(t) {
		_, err := s.Import(ctx, ins)
		require.NoError(t, err)

		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				res, err := s.Search(ctx, tt.filter)
				require.NoError(t, err)

				names := []string{}
				for _, l := range res {
					names = append(names, l.Name)
				}
				assert.Equal(t, tt.want, names)
			})
		}
	}
}

func TestSeed(t *testing.T) {
	s := NewMemStorage()

	res, err := Seed(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "Karim El Mansouri", res[0].Name)
	assert.Equal(t, int64(1), res[0].ID)
	assert.Equal(t, "Contacted", res[1].Status)
}

func TestNew_NegativeTTL(t *testing.T) {
	_, rdb := newRedis(t)
	_, err := New(&Config{Redis: rdb, CacheTTL: -1})
	assert.Error(t, err)
}

func TestStorage_ConcurrentCreateAndImport(t *testing.T) {
	const (
		importers = 4
		batchSize = 5
		creators  = 10
	)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				batches [][]*Lead
				created []*Lead
			)

			for i := 0; i < importers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()

					ins := make([]Input, 0, batchSize)
					for j := 0; j < batchSize; j++ {
						ins = append(ins, sampleInput(i*batchSize+j))
					}
					res, err := s.Import(ctx, ins)
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					batches = append(batches, res)
					mu.Unlock()
				}(i)
			}
			for i := 0; i < creators; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()

					l, err := s.Create(ctx, sampleInput(50+i))
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					created = append(created, l)
					mu.Unlock()
				}(i)
			}
			wg.Wait()

			require.Len(t, batches, importers)
			require.Len(t, created, creators)

			seen := map[int64]bool{}
			for _, batch := range batches {
				require.Len(t, batch, batchSize)
				for j, l := range batch {
					assert.False(t, seen[l.ID], "id %d handed out twice", l.ID)
					seen[l.ID] = true
					if j > 0 {
						// a batch gets a contiguous run of ids, in input order
						assert.Equal(t, batch[j-1].ID+1, l.ID)
					}
				}
			}
			for _, l := range created {
				assert.False(t, seen[l.ID], "id %d handed out twice", l.ID)
				seen[l.ID] = true
			}

			all, err := s.GetAll(ctx)
			require.NoError(t, err)
			assert.Len(t, all, importers*batchSize+creators)
		})
	}
}
