// Package m3u8 classifies captured URLs and decodes HLS playlists into a
// structured document. It understands the three playlist shapes an HLS
// download deals with: master playlists listing quality variants and audio
// renditions, and media playlists (video variants or audio tracks) listing
// segments. Relative references are resolved against the playlist URL.
package m3u8
