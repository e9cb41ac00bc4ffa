package config

import "strings"

type AllowedOrigins map[string]struct{}

func NewAllowedOrigins(origins []string) AllowedOrigins {
	allowed := make(AllowedOrigins, len(origins))
	for _, origin := range origins {
		allowed[origin] = struct{}{}
	}
	return allowed
}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}
