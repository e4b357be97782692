package repository

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"

	"lms-sessions/internal/session/domain"
)

// fetchBatch is the number of records loaded per MGET while streaming.
const fetchBatch = 100

// maxTxAttempts bounds optimistic retries of one mutation.
const maxTxAttempts = 16

// ErrConflict is returned when a mutation keeps losing its WATCH race to other writers.
var ErrConflict = errors.New("session: too many concurrent writers")

// RedisRepository stores session records in Redis. Every mutation is an optimistic
// WATCH/MULTI transaction on the sid and record keys, so a delete is never undone by a
// concurrent touch or update.
//
// Layout under the key prefix:
//
//	seq          INCR counter for ids
//	sid:<sid>    id owning the sid (unique; checked under WATCH)
//	rec:<id>     JSON record
//	user:<uid>   SET of ids owned by the user
//	all          ZSET of ids scored by id
//	mod          ZSET of ids scored by timemodified
type RedisRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisRepository returns a repository using rdb. An empty prefix defaults to "sessions:".
func NewRedisRepository(rdb redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "sessions:"
	}
	return &RedisRepository{rdb: rdb, prefix: prefix}
}

type redisRecord struct {
	ID           int64   `json:"id"`
	SID          string  `json:"sid"`
	UserID       int64   `json:"userid"`
	SessData     *string `json:"sessdata"`
	State        int     `json:"state"`
	TimeCreated  int64   `json:"timecreated"`
	TimeModified int64   `json:"timemodified"`
	FirstIP      string  `json:"firstip"`
	LastIP       string  `json:"lastip"`
}

func (r *RedisRepository) seqKey() string { return r.prefix + "seq" }
func (r *RedisRepository) sidKey(sid string) string { return r.prefix + "sid:" + sid }
func (r *RedisRepository) recKey(id int64) string { return r.prefix + "rec:" + strconv.FormatInt(id, 10) }
func (r *RedisRepository) userKey(uid int64) string { return r.prefix + "user:" + strconv.FormatInt(uid, 10) }
func (r *RedisRepository) allKey() string { return r.prefix + "all" }
func (r *RedisRepository) modKey() string { return r.prefix + "mod" }

// All streams every record ordered by id.
func (r *RedisRepository) All(ctx context.Context) iter.Seq2[*domain.Record, error] {
	return func(yield func(*domain.Record, error) bool) {
		members, err := r.rdb.ZRange(ctx, r.allKey(), 0, -1).Result()
		if err != nil {
			yield(nil, err)
			return
		}
		r.records(ctx, members, nil)(yield)
	}
}

// GetBySID returns the record for sid, or nil if not found.
func (r *RedisRepository) GetBySID(ctx context.Context, sid string) (*domain.Record, error) {
	id, err := r.IDBySID(ctx, sid)
	if err != nil || id == 0 {
		return nil, err
	}
	return r.get(ctx, id)
}

// IDBySID returns the id for sid, or 0 if not found.
func (r *RedisRepository) IDBySID(ctx context.Context, sid string) (int64, error) {
	return r.sidOwner(ctx, r.rdb, sid)
}

// ListByUserID returns the user's records ordered by id.
func (r *RedisRepository) ListByUserID(ctx context.Context, userID int64) ([]*domain.Record, error) {
	members, err := r.rdb.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	sortNumeric(members)
	var out []*domain.Record
	for rec, err := range r.records(ctx, members, nil) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListModifiedBefore streams records idle since before, skipping excluded user ids.
func (r *RedisRepository) ListModifiedBefore(ctx context.Context, before int64, excludeUserIDs ...int64) iter.Seq2[*domain.Record, error] {
	return func(yield func(*domain.Record, error) bool) {
		members, err := r.rdb.ZRangeByScore(ctx, r.modKey(), &redis.ZRangeBy{
			Min: "-inf",
			Max: "(" + strconv.FormatInt(before, 10),
		}).Result()
		if err != nil {
			yield(nil, err)
			return
		}
		sortNumeric(members)
		r.records(ctx, members, func(rec *domain.Record) bool {
			return rec.TimeModified < before && !slices.Contains(excludeUserIDs, rec.UserID)
		})(yield)
	}
}

// Create allocates an id and writes the sid reservation, the record and its indexes in one
// transaction, so a failed write leaves no reservation behind. A sid key whose record is gone
// does not count as taken.
func (r *RedisRepository) Create(ctx context.Context, s *domain.Record) (int64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	id, err := r.rdb.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return 0, err
	}
	cp := s.Clone()
	cp.ID = id
	raw, err := encodeRecord(cp)
	if err != nil {
		return 0, err
	}
	err = r.watch(ctx, func(tx *redis.Tx) error {
		taken, err := r.sidTaken(ctx, tx, s.SID)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateSID
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.sidKey(cp.SID), id, 0)
			r.queueWrite(ctx, pipe, nil, cp, raw)
			return nil
		})
		return err
	}, r.sidKey(s.SID))
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Update replaces the record with s.ID and moves its sid and user indexes if they changed.
// Returns false when the record no longer exists, including when it is deleted concurrently.
func (r *RedisRepository) Update(ctx context.Context, s *domain.Record) (bool, error) {
	rec := s.Clone()
	raw, err := encodeRecord(rec)
	if err != nil {
		return false, err
	}
	var updated bool
	err = r.watch(ctx, func(tx *redis.Tx) error {
		updated = false
		old, err := r.getTx(ctx, tx, rec.ID)
		if err != nil || old == nil {
			return err
		}
		if err := tx.Watch(ctx, r.sidKey(old.SID), r.sidKey(rec.SID)).Err(); err != nil {
			return err
		}
		if owner, err := r.sidOwner(ctx, tx, old.SID); err != nil || owner != old.ID {
			return err
		}
		if old.SID != rec.SID {
			taken, err := r.sidTaken(ctx, tx, rec.SID)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateSID
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if old.SID != rec.SID {
				pipe.Set(ctx, r.sidKey(rec.SID), rec.ID, 0)
			}
			r.queueWrite(ctx, pipe, old, rec, raw)
			return nil
		})
		updated = err == nil
		return err
	}, r.recKey(rec.ID))
	if err != nil {
		return false, err
	}
	return updated, nil
}

// Touch sets timemodified for sid. A sid deleted concurrently stays deleted.
func (r *RedisRepository) Touch(ctx context.Context, sid string, at int64) error {
	return r.watch(ctx, func(tx *redis.Tx) error {
		id, err := r.sidOwner(ctx, tx, sid)
		if err != nil || id == 0 {
			return err
		}
		if err := tx.Watch(ctx, r.recKey(id)).Err(); err != nil {
			return err
		}
		rec, err := r.getTx(ctx, tx, id)
		if err != nil || rec == nil {
			return err
		}
		rec.TimeModified = at
		raw, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.queueWrite(ctx, pipe, rec, rec, raw)
			return nil
		})
		return err
	}, r.sidKey(sid))
}

// DeleteAll removes every record and index. The id counter is kept so ids are not reused.
func (r *RedisRepository) DeleteAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+"*", 500).Result()
		if err != nil {
			return err
		}
		keys = slices.DeleteFunc(keys, func(k string) bool { return k == r.seqKey() })
		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// DeleteBySID removes the record for sid if present. A sid key left without a record is dropped too.
func (r *RedisRepository) DeleteBySID(ctx context.Context, sid string) error {
	return r.watch(ctx, func(tx *redis.Tx) error {
		id, err := r.sidOwner(ctx, tx, sid)
		if err != nil || id == 0 {
			return err
		}
		if err := tx.Watch(ctx, r.recKey(id)).Err(); err != nil {
			return err
		}
		rec, err := r.getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		member := strconv.FormatInt(id, 10)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, r.recKey(id), r.sidKey(sid))
			pipe.ZRem(ctx, r.allKey(), member)
			pipe.ZRem(ctx, r.modKey(), member)
			if rec != nil {
				pipe.SRem(ctx, r.userKey(rec.UserID), member)
			}
			return nil
		})
		return err
	}, r.sidKey(sid))
}

// Count returns the number of stored records.
func (r *RedisRepository) Count(ctx context.Context) (int64, error) {
	return r.rdb.ZCard(ctx, r.allKey()).Result()
}

// CountByUserID returns the number of records owned by userID.
func (r *RedisRepository) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	return r.rdb.SCard(ctx, r.userKey(userID)).Result()
}

// reader is the read side shared by the client and a WATCH transaction.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

func (r *RedisRepository) get(ctx context.Context, id int64) (*domain.Record, error) {
	return r.getTx(ctx, r.rdb, id)
}

func (r *RedisRepository) getTx(ctx context.Context, c reader, id int64) (*domain.Record, error) {
	raw, err := c.Get(ctx, r.recKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(raw)
}

// sidOwner returns the id stored under the sid key, or 0 if there is none.
func (r *RedisRepository) sidOwner(ctx context.Context, c reader, sid string) (int64, error) {
	id, err := c.Get(ctx, r.sidKey(sid)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return id, err
}

// sidTaken reports whether sid belongs to a stored record.
func (r *RedisRepository) sidTaken(ctx context.Context, c reader, sid string) (bool, error) {
	id, err := r.sidOwner(ctx, c, sid)
	if err != nil || id == 0 {
		return false, err
	}
	n, err := c.Exists(ctx, r.recKey(id)).Result()
	return n > 0, err
}

// watch runs fn under WATCH on keys and retries while another client changes a watched key
// between fn's reads and its MULTI/EXEC.
func (r *RedisRepository) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for range maxTxAttempts {
		err := r.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrConflict
}

// queueWrite queues rec and its indexes, dropping index entries of old that no longer apply.
func (r *RedisRepository) queueWrite(ctx context.Context, pipe redis.Pipeliner, old, rec *domain.Record, raw []byte) {
	member := strconv.FormatInt(rec.ID, 10)
	if old != nil && old.SID != rec.SID {
		pipe.Del(ctx, r.sidKey(old.SID))
	}
	if old != nil && old.UserID != rec.UserID {
		pipe.SRem(ctx, r.userKey(old.UserID), member)
	}
	pipe.Set(ctx, r.recKey(rec.ID), raw, 0)
	pipe.SAdd(ctx, r.userKey(rec.UserID), member)
	pipe.ZAdd(ctx, r.allKey(), redis.Z{Score: float64(rec.ID), Member: member})
	pipe.ZAdd(ctx, r.modKey(), redis.Z{Score: float64(rec.TimeModified), Member: member})
}

func encodeRecord(rec *domain.Record) ([]byte, error) {
	return json.Marshal(redisRecord{
		ID:           rec.ID,
		SID:          rec.SID,
		UserID:       rec.UserID,
		SessData:     rec.SessData,
		State:        rec.State,
		TimeCreated:  rec.TimeCreated,
		TimeModified: rec.TimeModified,
		FirstIP:      rec.FirstIP,
		LastIP:       rec.LastIP,
	})
}

// records loads members in batches and yields the decoded records that pass keep.
// Records deleted since the id list was read are skipped.
func (r *RedisRepository) records(ctx context.Context, members []string, keep func(*domain.Record) bool) iter.Seq2[*domain.Record, error] {
	return func(yield func(*domain.Record, error) bool) {
		for batch := range slices.Chunk(members, fetchBatch) {
			keys := make([]string, len(batch))
			for i, m := range batch {
				keys[i] = r.prefix + "rec:" + m
			}
			vals, err := r.rdb.MGet(ctx, keys...).Result()
			if err != nil {
				yield(nil, err)
				return
			}
			for _, v := range vals {
				s, ok := v.(string)
				if !ok {
					continue
				}
				rec, err := decodeRecord([]byte(s))
				if err != nil {
					yield(nil, err)
					return
				}
				if keep != nil && !keep(rec) {
					continue
				}
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

func decodeRecord(raw []byte) (*domain.Record, error) {
	var rr redisRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, err
	}
	return &domain.Record{
		ID:           rr.ID,
		SID:          rr.SID,
		UserID:       rr.UserID,
		SessData:     rr.SessData,
		State:        rr.State,
		TimeCreated:  rr.TimeCreated,
		TimeModified: rr.TimeModified,
		FirstIP:      rr.FirstIP,
		LastIP:       rr.LastIP,
	}, nil
}

func sortNumeric(members []string) {
	slices.SortFunc(members, func(a, b string) int {
		x, _ := strconv.ParseInt(a, 10, 64)
		y, _ := strconv.ParseInt(b, 10, 64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	})
}
