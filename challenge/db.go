package challenge

import (
	"bytes"
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	xdr "github.com/nullstyle/go-xdr/xdr3"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = leveldb.ErrNotFound

// database is the entity store for challenge and participant records.
// Records are addressed by deterministic composite keys:
//
//	challenge/<id>
//	participant/<id>/<wallet>
//
// with <id> rendered as fixed-width hex, so that all participants of a
// challenge share a strict key prefix and records of different challenges
// can never collide.
type database struct {
	db *leveldb.DB

	// read cache of decoded challenge records, invalidated on writes.
	challenges *lru.Cache
}

func newDatabase(dbPath string, cacheSize int) (*database, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database @ %s: %w", dbPath, err)
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating challenge cache: %w", err)
	}
	return &database{db: db, challenges: cache}, nil
}

func (db *database) Close() error {
	return db.db.Close()
}

func challengeKey(id uint64) []byte {
	return []byte(fmt.Sprintf("challenge/%016x", id))
}

func participantPrefix(id uint64) []byte {
	return []byte(fmt.Sprintf("participant/%016x/", id))
}

func participantKey(id uint64, wallet string) []byte {
	return append(participantPrefix(id), wallet...)
}

func serialize(record any) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, record); err != nil {
		return nil, fmt.Errorf("serialization failure: %w", err)
	}
	return buf.Bytes(), nil
}

func (db *database) SaveChallenge(ctx context.Context, c *Challenge) error {
	data, err := serialize(c)
	if err != nil {
		return err
	}
	if err := db.db.Put(challengeKey(c.ID), data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("storing challenge %d: %w", c.ID, err)
	}
	db.challenges.Remove(c.ID)
	return nil
}

func (db *database) GetChallenge(ctx context.Context, id uint64) (*Challenge, error) {
	if cached, ok := db.challenges.Get(id); ok {
		c := *cached.(*Challenge)
		return &c, nil
	}

	data, err := db.db.Get(challengeKey(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get challenge %d from DB: %w", id, err)
	}
	c := &Challenge{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), c); err != nil {
		return nil, fmt.Errorf("failed to deserialize challenge %d: %w", id, err)
	}
	cached := *c
	db.challenges.Add(id, &cached)
	return c, nil
}

func (db *database) SaveParticipant(ctx context.Context, p *Participant) error {
	data, err := serialize(p)
	if err != nil {
		return err
	}
	key := participantKey(p.ChallengeID, p.Wallet)
	if err := db.db.Put(key, data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("storing participant %s: %w", p.Wallet, err)
	}
	return nil
}

func (db *database) GetParticipant(ctx context.Context, id uint64, wallet string) (*Participant, error) {
	data, err := db.db.Get(participantKey(id, wallet), nil)
	if err != nil {
		return nil, fmt.Errorf("get participant %s of challenge %d from DB: %w", wallet, id, err)
	}
	p := &Participant{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), p); err != nil {
		return nil, fmt.Errorf("failed to deserialize participant %s: %w", wallet, err)
	}
	return p, nil
}

// SaveJoin writes an updated challenge together with its new participant
// in a single batch, so that an admission is never half-recorded.
func (db *database) SaveJoin(ctx context.Context, c *Challenge, p *Participant) error {
	challengeData, err := serialize(c)
	if err != nil {
		return err
	}
	participantData, err := serialize(p)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(challengeKey(c.ID), challengeData)
	batch.Put(participantKey(p.ChallengeID, p.Wallet), participantData)
	if err := db.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("storing admission of %s to challenge %d: %w", p.Wallet, c.ID, err)
	}
	db.challenges.Remove(c.ID)
	return nil
}

// Participants enumerates every participant of a challenge. The
// enumeration is complete: a record that cannot be decoded fails the whole
// call instead of being silently skipped, since reward processing must
// never aggregate over a partial set.
func (db *database) Participants(ctx context.Context, id uint64) ([]*Participant, error) {
	iter := db.db.NewIterator(util.BytesPrefix(participantPrefix(id)), nil)
	defer iter.Release()

	var participants []*Participant
	for iter.Next() {
		p := &Participant{}
		if _, err := xdr.Unmarshal(bytes.NewReader(iter.Value()), p); err != nil {
			return nil, fmt.Errorf("failed to deserialize participant record %q: %w", iter.Key(), err)
		}
		participants = append(participants, p)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("enumerating participants of challenge %d: %w", id, err)
	}
	return participants, nil
}
