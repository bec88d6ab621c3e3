// Package tiercache composes two cache tiers into one logical cache.
//
// A FrontTier wraps a fast, bounded accelerator tier and an authority tier
// that holds the full keyspace, and enforces what must hold between them:
//
//   - Every unpinned entry in the accelerator is also in the authority.
//   - Pinned entries stay in the accelerator; an authority that cannot pin
//     never holds them.
//   - Size is max(accelerator, authority + accelerator pinned).
//
// Components:
//   - Tier: the capability set both tiers expose (see tier/memory,
//     tier/ristretto, tier/bigcache, tier/redis, tier/mongo).
//   - Isolation: copy-on-read / copy-on-write using a Copier (CodecCopier
//     round-trips values through a codec.Codec).
//   - NopTier: stores nothing; used as the accelerator by NewPassthrough.
//
// Compositions:
//
//	acc := memory.New[User](memory.Config{MaxEntries: 10_000})
//	auth, _ := redis.New[User](redis.Config[User]{Client: rdb, Namespace: "user", Codec: codec.JSON[User]{}})
//	c, _ := tiercache.NewAcceleratedDurable[User](acc, auth, tiercache.Options[User]{})
//
//	mem := memory.New[User](memory.Config{})
//	c, _ := tiercache.NewPassthrough[User](mem, tiercache.Options[User]{})
package tiercache
