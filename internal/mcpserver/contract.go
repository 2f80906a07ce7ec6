package mcpserver

// ConventionsURI is the resource URI of the metadata conventions document.
const ConventionsURI = "mediatag://conventions"

// Conventions describes how mediatag stores tags and dates so that LLM
// consumers pick sensible values before writing.
const Conventions = `# mediatag Metadata Conventions

mediatag keeps tags and a creation date inside each media file's XMP packet,
or in a sidecar next to it (` + "`" + `photo.jpg.xmp` + "`" + `).

## Paths

- Paths are relative to the library root and use forward slashes
  (e.g. ` + "`" + `trips/2021/beach.jpg` + "`" + `).
- Only media files are accepted (by default jpg, jpeg, png, gif, webp,
  tif, tiff, heic, heif, dng, cr2, nef, arw, mp4, mov, m4v, mkv, avi).

## Tags

1. Tags live in ` + "`" + `dc:subject` + "`" + ` as an unordered list. Order is kept as written.
2. A tag is any non-empty text up to 256 characters. Duplicates are allowed
   and kept; removing a tag removes its first occurrence only.
3. Tags are case-sensitive when stored. ` + "`" + `search_tags` + "`" + ` matches
   case-insensitively on substrings.
4. Prefer short lowercase words (` + "`" + `beach` + "`" + `, ` + "`" + `family` + "`" + `) so
   the vocabulary stays small.

## Dates

The creation date is read from, in order of priority, ` + "`" + `xmp:CreateDate` + "`" + `,
` + "`" + `exif:DateTimeOriginal` + "`" + ` and ` + "`" + `dc:created` + "`" + `. Setting a date writes all three.

Accepted input forms:

- ` + "`" + `2021-05-01T08:00:00Z` + "`" + ` or ` + "`" + `2021-05-01T08:00:00+02:00` + "`" + ` (preferred)
- ` + "`" + `Sat, 01 May 2021 08:00:00 +0000` + "`" + `
- ` + "`" + `2021-05-01T08:00:00` + "`" + `, ` + "`" + `2021-05-01 08:00:00` + "`" + `, ` + "`" + `2021:05:01 08:00:00` + "`" + `
- ` + "`" + `2021-05-01T08:00` + "`" + `, ` + "`" + `2021-05-01` + "`" + `, ` + "`" + `2021:05:01` + "`" + `, ` + "`" + `2021-05` + "`" + `, ` + "`" + `2021` + "`" + `

Values without a zone are stored as UTC. Dates are written back in RFC 3339.
`
