// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"runtime"
	"strconv"
	"strings"

	"github.com/ibenthos/geotag/geoerr"
	"github.com/ibenthos/geotag/utils/htmlutils"
	"github.com/ibenthos/geotag/utils/logger"
	"github.com/ibenthos/geotag/utils/textutils"
	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultIcon is used for placemarks when thumbnails are disabled.
	DefaultIcon = "https://www.iconsdb.com/icons/download/white/circle-48.png"
	// DefaultIconColor tints DefaultIcon green (aabbggrr).
	DefaultIconColor = "ff008000"
	// PreviewWidth is the max width of the photo in placemark balloons.
	PreviewWidth = 400

	kmlNamespace = "http://www.opengis.net/kml/2.2"
	thumbsDir    = ".thumbs"
)

// KMLOptions controls the overview map.
type KMLOptions struct {
	Name       string
	Thumbnails bool
}

type kmlDoc struct {
	XMLName  xml.Name `xml:"kml"`
	Xmlns    string   `xml:"xmlns,attr"`
	Document kmlDocument
}

type kmlDocument struct {
	XMLName    xml.Name       `xml:"Document"`
	Name       string         `xml:"name,omitempty"`
	Styles     []kmlStyle     `xml:"Style"`
	StyleMaps  []kmlStyleMap  `xml:"StyleMap"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlStyle struct {
	ID        string `xml:"id,attr"`
	IconStyle struct {
		Color string  `xml:"color,omitempty"`
		Scale float64 `xml:"scale"`
		Href  string  `xml:"Icon>href"`
	} `xml:"IconStyle"`
	LabelScale float64 `xml:"LabelStyle>scale"`
}

type kmlPair struct {
	Key      string `xml:"key"`
	StyleURL string `xml:"styleUrl"`
}

type kmlStyleMap struct {
	ID    string    `xml:"id,attr"`
	Pairs []kmlPair `xml:"Pair"`
}

type cdata struct {
	Text string `xml:",cdata"`
}

type kmlPlacemark struct {
	Name        string `xml:"name"`
	Visibility  int    `xml:"visibility"`
	Snippet     string `xml:"Snippet"`
	Description cdata  `xml:"description"`
	StyleURL    string `xml:"styleUrl"`
	Coordinates string `xml:"Point>coordinates"`
}

func style(id, href, color string, scale, label float64) kmlStyle {
	s := kmlStyle{ID: id, LabelScale: label}
	s.IconStyle.Color = color
	s.IconStyle.Scale = scale
	s.IconStyle.Href = href

	return s
}

func stem(rel string) string {
	base := path.Base(rel)

	return strings.TrimSuffix(base, path.Ext(base))
}

// ThumbnailPath is the KMZ entry holding the icon of a photo.
func ThumbnailPath(rel string) string {
	slug := textutils.Slug(rel)
	if slug == "" {
		slug = "photo"
	}

	return thumbsDir + "/" + slug + ".png"
}

// buildKML assembles the document; icons maps RelPath to the icon href.
func buildKML(opts KMLOptions, records []Record, icons map[string]string) (kmlDoc, error) {
	doc := kmlDoc{Xmlns: kmlNamespace}
	doc.Document.Name = opts.Name

	for i, r := range records {
		name := stem(r.RelPath)

		desc, err := htmlutils.PhotoPreview(name, r.RelPath, PreviewWidth)
		if err != nil {
			return kmlDoc{}, err
		}

		snippet, err := htmlutils.PlainText(desc)
		if err != nil {
			return kmlDoc{}, err
		}

		href, color := icons[r.RelPath], ""
		if href == "" {
			href, color = DefaultIcon, DefaultIconColor
		}

		id := strconv.Itoa(i)
		normal, highlight := "style_"+id+"_normal", "style_"+id+"_highlight"

		doc.Document.Styles = append(doc.Document.Styles,
			style(normal, href, color, 1.0, 0),
			style(highlight, href, color, 1.5, 1),
		)
		doc.Document.StyleMaps = append(doc.Document.StyleMaps, kmlStyleMap{
			ID: "stylemap_" + id,
			Pairs: []kmlPair{
				{Key: "normal", StyleURL: "#" + normal},
				{Key: "highlight", StyleURL: "#" + highlight},
			},
		})
		doc.Document.Placemarks = append(doc.Document.Placemarks, kmlPlacemark{
			Name:        name,
			Snippet:     snippet,
			Description: cdata{desc},
			StyleURL:    "#stylemap_" + id,
			Coordinates: strconv.FormatFloat(r.Position.Lng, 'f', -1, 64) + "," +
				strconv.FormatFloat(r.Position.Lat, 'f', -1, 64),
		})
	}

	return doc, nil
}

func encodeKML(w io.Writer, doc kmlDoc) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return err
	}

	return enc.Close()
}

// WriteKML writes images.kml, or images.kmz with circular thumbnails when
// opts.Thumbnails is set, into dir. A photo whose thumbnail cannot be built
// keeps the default icon.
func WriteKML(ctx context.Context, dir string, opts KMLOptions, records []Record) error {
	if len(records) == 0 {
		return geoerr.Export("no geotagged images to place in KML", nil)
	}

	records = sorted(records)

	if !opts.Thumbnails {
		doc, err := buildKML(opts, records, nil)
		if err != nil {
			return geoerr.Export("building KML", err)
		}

		return writeFile(dir, KMLFile, func(w io.Writer) error { return encodeKML(w, doc) })
	}

	thumbs := make([][]byte, len(records))
	log := logger.Get()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, r := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			b, err := ThumbnailPNG(r.Path)
			if err != nil {
				log.Warn().Err(err).Str("photo", r.RelPath).Msg("Thumbnail failed, using the default icon")

				return nil
			}

			thumbs[i] = b

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return geoerr.Export("generating thumbnails", err)
	}

	icons := make(map[string]string, len(records))
	used := make(map[string]bool, len(records))

	for i, r := range records {
		if thumbs[i] == nil {
			continue
		}

		p := ThumbnailPath(r.RelPath)
		if used[p] {
			p = strings.TrimSuffix(p, ".png") + "_" + strconv.Itoa(i) + ".png"
		}

		used[p] = true
		icons[r.RelPath] = p
	}

	doc, err := buildKML(opts, records, icons)
	if err != nil {
		return geoerr.Export("building KML", err)
	}

	return writeFile(dir, KMZFile, func(w io.Writer) error {
		zw := zip.NewWriter(w)

		kw, err := zw.Create("doc.kml")
		if err != nil {
			return err
		}

		if err := encodeKML(kw, doc); err != nil {
			return err
		}

		for i, r := range records {
			if thumbs[i] == nil {
				continue
			}

			tw, err := zw.Create(icons[r.RelPath])
			if err != nil {
				return err
			}

			if _, err := tw.Write(thumbs[i]); err != nil {
				return err
			}
		}

		return zw.Close()
	})
}

func writeFile(dir, name string, write func(io.Writer) error) error {
	f, publish, err := createFile(dir, name)
	if err != nil {
		return geoerr.Export("writing "+name, err)
	}

	if err := write(f); err != nil {
		discard(f)

		return geoerr.Export(fmt.Sprintf("writing %s", name), err)
	}

	if err := publish(); err != nil {
		return geoerr.Export("writing "+name, err)
	}

	return nil
}
