/*
Package lock provides cross-instance mutual exclusion for lifecycle
transitions.

Two implementations back the Locker interface:

  - RedisLocker: SET NX EX with a random token per acquisition, Lua
    compare-and-set scripts for release and extend. Mutually exclusive
    across every instance sharing the Redis.
  - LocalLocker: in-process map with the same TTL semantics, for tests
    and single-node runs.

# Lock Keys

The deployment manager takes:

	deployment:{id}:planning     ttl 120s   around plan generation
	deployment:{id}:completion   ttl 30s    around task-completion handling

Locks are advisory: nothing stops code from bypassing them, so they
must be acquired before the invariants they protect are computed.
Acquire is try-once and non-blocking; a contended acquire returns
(false, nil), which the manager surfaces as a retryable conflict.

# Token Safety

Every acquisition stores a uuid token. Release and extend only act when
the stored key still matches that token, so a holder whose ttl lapsed
cannot delete or extend a lock that another instance has since
re-acquired.

# See Also

  - pkg/manager for the lock discipline around planning and completion
*/
package lock
