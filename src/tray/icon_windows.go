//go:build windows

package tray

func platformIcon(pngData []byte) []byte { return wrapICO(pngData, iconSize) }
