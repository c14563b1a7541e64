package validator

// reservedWords is the SQL keyword set that table and column names must
// avoid. It covers PostgreSQL reserved words plus common keywords that
// break unquoted DDL in practice (user, order, table, ...).
var reservedWords = map[string]bool{
	"all": true, "alter": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "between": true, "both": true,
	"case": true, "cast": true, "check": true, "collate": true,
	"column": true, "constraint": true, "create": true, "cross": true,
	"current_date": true, "current_time": true, "current_timestamp": true,
	"current_user": true, "default": true, "delete": true, "desc": true,
	"distinct": true, "do": true, "drop": true, "else": true, "end": true,
	"except": true, "exists": true, "false": true, "fetch": true,
	"for": true, "foreign": true, "from": true, "full": true,
	"grant": true, "group": true, "having": true, "in": true,
	"index": true, "inner": true, "insert": true, "intersect": true,
	"into": true, "is": true, "join": true, "lateral": true,
	"leading": true, "left": true, "like": true, "limit": true,
	"localtime": true, "localtimestamp": true, "natural": true,
	"not": true, "null": true, "offset": true, "on": true, "only": true,
	"or": true, "order": true, "outer": true, "policy": true,
	"primary": true, "references": true, "returning": true,
	"right": true, "select": true, "session_user": true, "set": true,
	"some": true, "symmetric": true, "table": true, "then": true,
	"to": true, "trailing": true, "trigger": true, "true": true,
	"union": true, "unique": true, "update": true, "user": true,
	"using": true, "values": true, "view": true, "when": true,
	"where": true, "window": true, "with": true,
}

// IsReservedWord reports whether name collides with the reserved set.
func IsReservedWord(name string) bool {
	return reservedWords[name]
}
