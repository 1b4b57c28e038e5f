package tracking

func init() { strict = true }
