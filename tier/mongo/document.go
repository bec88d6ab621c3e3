package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
)

// document is the stored form of one entry. Version increases on every
// write and guards conditional updates.
type document struct {
	Key        string     `bson:"_id"`
	Value      []byte     `bson:"value"`
	Pinned     bool       `bson:"pinned"`
	Eternal    bool       `bson:"eternal"`
	CreatedAt  time.Time  `bson:"created_at"`
	AccessedAt time.Time  `bson:"accessed_at,omitempty"`
	TTI        int64      `bson:"tti"`
	TTL        int64      `bson:"ttl"`
	ExpiresAt  *time.Time `bson:"expires_at,omitempty"`
	Version    int64      `bson:"version"`
}

func toDocument[V any](c codec.Codec[V], e tiercache.Entry[V], now time.Time) (document, error) {
	b, err := c.Encode(e.Value)
	if err != nil {
		return document{}, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	d := document{
		Key:        e.Key,
		Value:      b,
		Pinned:     e.Pinned,
		Eternal:    e.Eternal,
		CreatedAt:  e.CreatedAt,
		AccessedAt: e.LastAccessedAt,
		TTI:        int64(e.TTI),
		TTL:        int64(e.TTL),
	}
	if left, ok := e.ExpiresIn(now); ok {
		at := now.Add(left)
		d.ExpiresAt = &at
	}
	return d, nil
}

func fromDocument[V any](c codec.Codec[V], d document) (tiercache.Entry[V], error) {
	v, err := c.Decode(d.Value)
	if err != nil {
		return tiercache.Entry[V]{}, err
	}
	return tiercache.Entry[V]{
		Key:            d.Key,
		Value:          v,
		Pinned:         d.Pinned,
		Eternal:        d.Eternal,
		CreatedAt:      d.CreatedAt,
		LastAccessedAt: d.AccessedAt,
		TTI:            time.Duration(d.TTI),
		TTL:            time.Duration(d.TTL),
	}, nil
}

func (d document) expired(now time.Time) bool {
	return d.ExpiresAt != nil && !d.ExpiresAt.After(now)
}

// update is the $set/$unset part of an update writing d; version is bumped with $inc.
func (d document) update() bson.M {
	set := bson.M{
		"value":      d.Value,
		"pinned":     d.Pinned,
		"eternal":    d.Eternal,
		"created_at": d.CreatedAt,
		"tti":        d.TTI,
		"ttl":        d.TTL,
	}
	unset := bson.M{}
	if d.AccessedAt.IsZero() {
		unset["accessed_at"] = ""
	} else {
		set["accessed_at"] = d.AccessedAt
	}
	if d.ExpiresAt == nil {
		unset["expires_at"] = ""
	} else {
		set["expires_at"] = *d.ExpiresAt
	}
	u := bson.M{"$set": set, "$inc": bson.M{"version": int64(1)}}
	if len(unset) > 0 {
		u["$unset"] = unset
	}
	return u
}

// live matches documents that have not expired at now.
func live(now time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"expires_at": bson.M{"$exists": false}},
		bson.M{"expires_at": bson.M{"$gt": now}},
	}}
}
