package queue

import "github.com/redis/go-redis/v9"

// Job hashes and lock keys are derived inside the scripts from the key
// prefix passed as ARGV[1], e.g. "mailer:email:".

const trimFunc = `
local function trim(listKey, prefix, cap)
	if cap < 0 then
		return
	end
	local evicted = redis.call("lrange", listKey, cap, -1)
	for _, old in ipairs(evicted) do
		redis.call("del", prefix .. "job:" .. old)
	end
	if cap == 0 then
		redis.call("del", listKey)
	else
		redis.call("ltrim", listKey, 0, cap - 1)
	end
end
`

// KEYS: wait, active, paused
// ARGV: prefix, token, lock ms, now ms
var claimScript = redis.NewScript(`
if redis.call("exists", KEYS[3]) == 1 then
	return false
end
local id = redis.call("rpoplpush", KEYS[1], KEYS[2])
if not id then
	return false
end
redis.call("set", ARGV[1] .. "lock:" .. id, ARGV[2], "PX", ARGV[3])
redis.call("hset", ARGV[1] .. "job:" .. id, "state", "active", "processedOn", ARGV[4])
return id
`)

// KEYS: lock
// ARGV: token, lock ms
var extendLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// KEYS: active, completed
// ARGV: prefix, id, token, now ms, return value, retain cap
var completeScript = redis.NewScript(trimFunc + `
local jobKey = ARGV[1] .. "job:" .. ARGV[2]
local lockKey = ARGV[1] .. "lock:" .. ARGV[2]
if redis.call("get", lockKey) ~= ARGV[3] then
	return -1
end
redis.call("del", lockKey)
redis.call("lrem", KEYS[1], 0, ARGV[2])
local attempts = redis.call("hincrby", jobKey, "attemptsMade", 1)
redis.call("hset", jobKey, "state", "completed", "finishedOn", ARGV[4], "returnvalue", ARGV[5])
redis.call("lpush", KEYS[2], ARGV[2])
trim(KEYS[2], ARGV[1], tonumber(ARGV[6]))
return attempts
`)

// KEYS: active, wait, delayed, failed
// ARGV: prefix, id, token, now ms, reason, mode, due ms, retain cap
var failScript = redis.NewScript(trimFunc + `
local jobKey = ARGV[1] .. "job:" .. ARGV[2]
local lockKey = ARGV[1] .. "lock:" .. ARGV[2]
if redis.call("get", lockKey) ~= ARGV[3] then
	return -1
end
redis.call("del", lockKey)
redis.call("lrem", KEYS[1], 0, ARGV[2])
local attempts = redis.call("hincrby", jobKey, "attemptsMade", 1)
redis.call("hset", jobKey, "failedReason", ARGV[5])
if ARGV[6] == "retry" then
	if ARGV[7] ~= "0" then
		redis.call("hset", jobKey, "state", "delayed", "delayUntil", ARGV[7])
		redis.call("zadd", KEYS[3], ARGV[7], ARGV[2])
	else
		redis.call("hset", jobKey, "state", "waiting", "delayUntil", "0")
		redis.call("lpush", KEYS[2], ARGV[2])
	end
else
	redis.call("hset", jobKey, "state", "failed", "finishedOn", ARGV[4])
	redis.call("lpush", KEYS[4], ARGV[2])
	trim(KEYS[4], ARGV[1], tonumber(ARGV[8]))
end
return attempts
`)

// KEYS: delayed, wait
// ARGV: prefix, now ms, limit
var promoteScript = redis.NewScript(`
local ids = redis.call("zrangebyscore", KEYS[1], "-inf", ARGV[2], "LIMIT", 0, ARGV[3])
for _, id in ipairs(ids) do
	redis.call("zrem", KEYS[1], id)
	redis.call("lpush", KEYS[2], id)
	redis.call("hset", ARGV[1] .. "job:" .. id, "state", "waiting", "delayUntil", "0")
end
return #ids
`)

// KEYS: active, wait
// ARGV: prefix
var stalledScript = redis.NewScript(`
local stalled = {}
local ids = redis.call("lrange", KEYS[1], 0, -1)
for _, id in ipairs(ids) do
	if redis.call("exists", ARGV[1] .. "lock:" .. id) == 0 then
		local jobKey = ARGV[1] .. "job:" .. id
		redis.call("lrem", KEYS[1], 0, id)
		redis.call("rpush", KEYS[2], id)
		redis.call("hset", jobKey, "state", "waiting")
		redis.call("hincrby", jobKey, "stalledCounter", 1)
		table.insert(stalled, id)
	end
end
return stalled
`)

// KEYS: failed
// ARGV: prefix
var cleanFailedScript = redis.NewScript(`
local ids = redis.call("lrange", KEYS[1], 0, -1)
for _, id in ipairs(ids) do
	redis.call("del", ARGV[1] .. "job:" .. id)
end
redis.call("del", KEYS[1])
return #ids
`)

var allScripts = []*redis.Script{
	claimScript,
	extendLockScript,
	completeScript,
	failScript,
	promoteScript,
	stalledScript,
	cleanFailedScript,
}
