//go:build !windows

package main

func prepareProcess() {}
