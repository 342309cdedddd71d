package context

type Key string

const (
	UserID Key = "user_id"
	Params Key = "params"
)
