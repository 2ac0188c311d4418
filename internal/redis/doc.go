// Package redis implements the Redis-backed Credential Store.
//
// One string key per workspace (workspace:{id}:token) holds the bearer token.
// The client carries a metrics hook and is connected with a bounded boot-time retry.
package redis
