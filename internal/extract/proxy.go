package extract

import (
	"net/http"
	"net/url"
)

// proxyFunc routes extractor requests through the configured proxies,
// falling back to the environment when none are set
func proxyFunc(httpProxy, httpsProxy string) (func(*http.Request) (*url.URL, error), error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment, nil
	}

	var plain, secure *url.URL
	var err error
	if httpProxy != "" {
		if plain, err = url.Parse(httpProxy); err != nil {
			return nil, err
		}
	}
	if httpsProxy != "" {
		if secure, err = url.Parse(httpsProxy); err != nil {
			return nil, err
		}
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && secure != nil {
			return secure, nil
		}
		if plain != nil {
			return plain, nil
		}
		return http.ProxyFromEnvironment(req)
	}, nil
}
