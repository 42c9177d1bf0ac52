package redis

import "github.com/redis/go-redis/v9"

// Script replies. Lua scripts run atomically, so the existence checks, the
// duplicate check and the solved transition observe one consistent state.
const (
	replyWon           = "won"
	replyLate          = "late"
	replyRecorded      = "recorded"
	replyNotFound      = "not_found"
	replyNoParticipant = "no_participant"
	replyDuplicate     = "duplicate"
	replyCodeTaken     = "code_taken"
)

// KEYS: riddle, attempts, participants, history, unsolved, solved
// ARGV: participantID, riddleID, won attempt JSON, late attempt JSON, score
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return {'not_found'} end
if redis.call('HEXISTS', KEYS[3], ARGV[1]) == 0 then return {'no_participant'} end
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 1 then return {'duplicate'} end
if redis.call('HGET', KEYS[1], 'solved') == '1' then
  redis.call('HSET', KEYS[2], ARGV[1], ARGV[4])
  redis.call('ZADD', KEYS[4], ARGV[5], ARGV[4])
  return {'late', redis.call('HGET', KEYS[1], 'solver_id')}
end
redis.call('HSET', KEYS[1], 'solved', '1', 'solver_id', ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[4], ARGV[5], ARGV[3])
redis.call('ZREM', KEYS[5], ARGV[2])
redis.call('ZADD', KEYS[6], ARGV[5], ARGV[3])
return {'won', ARGV[1]}
`)

// KEYS: riddle, attempts, participants, history
// ARGV: participantID, attempt JSON, score
var recordScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return {'not_found'} end
if redis.call('HEXISTS', KEYS[3], ARGV[1]) == 0 then return {'no_participant'} end
if redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[2]) == 0 then return {'duplicate'} end
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[2])
return {'recorded'}
`)

// KEYS: participants, codes
// ARGV: participantID, code, participant JSON
var registerScript = redis.NewScript(`
if ARGV[2] ~= '' then
  local owner = redis.call('HGET', KEYS[2], ARGV[2])
  if owner and owner ~= ARGV[1] then return {'code_taken'} end
  redis.call('HSET', KEYS[2], ARGV[2], ARGV[1])
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
return {'recorded'}
`)

// KEYS: riddle, unsolved
// ARGV: riddleID
var resetScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'solved', '0', 'solver_id', '')
redis.call('ZADD', KEYS[2], redis.call('HGET', KEYS[1], 'created_at'), ARGV[1])
return 1
`)

// KEYS: riddle, unsolved
// ARGV: riddleID, question, remark, options JSON, answer, created_at score
var putScript = redis.NewScript(`
redis.call('HSET', KEYS[1], 'question', ARGV[2], 'remark', ARGV[3], 'options', ARGV[4], 'answer', ARGV[5])
redis.call('HSETNX', KEYS[1], 'solved', '0')
redis.call('HSETNX', KEYS[1], 'solver_id', '')
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[6])
if redis.call('HGET', KEYS[1], 'solved') == '0' then
  redis.call('ZADD', KEYS[2], redis.call('HGET', KEYS[1], 'created_at'), ARGV[1])
end
return 1
`)

// KEYS: riddle, attempts, unsolved, solved
// ARGV: riddleID, history key prefix
var deleteScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
local attempts = redis.call('HGETALL', KEYS[2])
for i = 1, #attempts, 2 do
  redis.call('ZREM', ARGV[2] .. attempts[i], attempts[i + 1])
  redis.call('ZREM', KEYS[4], attempts[i + 1])
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('ZREM', KEYS[3], ARGV[1])
return 1
`)
