//go:build !devices

package main

import "github.com/pion/mediadevices"

// codecSelector returns nil without the devices tag: no capture drivers are
// linked, so calls fall back to empty streams and the default codecs.
func codecSelector() (*mediadevices.CodecSelector, error) {
	return nil, nil
}
