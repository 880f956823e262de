package sessionsvc

// SetServiceKey lets external test packages override the unexported
// service key on a Client.
func SetServiceKey(c *Client, key string) { c.serviceKey = key }
