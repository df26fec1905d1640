package redis

const (
	// setValueScript atomically stores a value and indexes its logical key so
	// enumeration never needs a SCAN over a shared keyspace.
	setValueScript = `
local value_key = KEYS[1]   -- timetrack:kv:{key}
local index_key = KEYS[2]   -- timetrack:index

local key = ARGV[1]
local value = ARGV[2]

redis.call('SET', value_key, value)
redis.call('SADD', index_key, key)

return 'OK'
`
)
