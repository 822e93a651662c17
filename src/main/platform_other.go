//go:build !windows

package main

func preparePlatform() {}
