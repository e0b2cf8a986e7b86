// Package server exposes the TTS service over HTTP with gin.
package server
