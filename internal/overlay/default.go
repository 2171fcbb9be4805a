package overlay

import "fmt"

// Placeholder is rendered for attributes a feature does not carry.
const Placeholder = "Sin dato"

var regionPalette = []string{"#66c2a5", "#fc8d62", "#8da0cb", "#e78ac3", "#a6d854", "#ffd92f", "#e5c494", "#b3b3b3"}

// regionColors colors the 266 peace regions by cycling the palette.
func regionColors() []any {
	expr := []any{"match", []any{"get", "_REGION"}}
	for i := 1; i <= 266; i++ {
		expr = append(expr, i, regionPalette[i%len(regionPalette)])
	}
	return append(expr, "#cccccc")
}

// zoneOverlays builds the office, peace table and peace region overlays of a
// zone. regionColor is the legend swatch of the region overlay.
func zoneOverlays(zone, title, regionColor string) []Descriptor {
	return []Descriptor{
		{
			ID: "or_" + zone, Title: "Oficinas de Representación INPI", Group: title, Color: "#BC955C",
			Kind: Point, Dataset: "or_" + zone, Cursor: true,
			Paint: map[string]any{
				"circle-radius": 5.5, "circle-color": "#BC955C",
				"circle-stroke-color": "#ffffff", "circle-stroke-width": 1,
			},
			Fields: []Field{
				{"Entidad", "nom_ent"}, {"Municipio", "nom_mun"}, {"Localidad", "nom_loc"},
				{"Oficina de Representación", "or_ccpi"},
			},
		},
		{
			ID: "mesas_cercanas_" + zone, Title: "Mesas de Paz", Group: title, Color: "#f8e71c",
			Kind: Polygon, Dataset: "mesas_cercanas_" + zone, Cursor: true,
			Paint: map[string]any{
				"fill-color": "#f8e71c", "fill-opacity": 0.4, "fill-outline-color": "#333333",
			},
			Fields: []Field{
				{"Entidad", "_NOM_ENT"}, {"Región", "_REGION"}, {"Nombre Región", "_NOM_REGION"},
			},
		},
		{
			ID: "regiones_" + zone, Title: "Regiones de Paz", Group: title, Color: regionColor,
			Kind: Polygon, Dataset: "regiones_" + zone, Cursor: true, HoverOn: "mousemove",
			Paint: map[string]any{
				"fill-color": regionColors(), "fill-opacity": 0.5, "fill-outline-color": "#333333",
			},
			Fields: []Field{
				{"Entidad", "_NOM_ENT"}, {"Municipio", "NOMGEO"}, {"Región", "_REGION"},
				{"Nombre Región", "_NOM_REGION"},
			},
		},
	}
}

func wifiOverlay(id, title, color, tech string) Descriptor {
	return Descriptor{
		ID: id, Title: title, Group: "Despliegue WiFi CFE", Color: color,
		Kind: Point, Dataset: "PuntosWiFiCFE", Source: "PuntosWiFiCFE",
		Filter: []any{"==", []any{"get", "TECNOLOGIA"}, tech},
		Paint: map[string]any{
			"circle-radius": 1.5, "circle-color": color,
			"circle-stroke-color": "#ffffff", "circle-stroke-width": 0,
		},
		Fields: []Field{
			{"Nombre", "INMUEBLE NOMBRE"}, {"Tipo", "TIPO INMUEBLE"}, {"AP", "NOMBRE AP"},
			{"Tecnología", "TECNOLOGIA"},
		},
	}
}

// DefaultDescriptors is the overlay set of the development-poles map.
func DefaultDescriptors() []Descriptor {
	var ds []Descriptor
	ds = append(ds, zoneOverlays("zona1", "Zona 1", "#66c2a5")...)
	ds = append(ds, zoneOverlays("zona2", "Zona 2", "#fc8d62")...)

	ds = append(ds,
		Descriptor{
			ID: "LocalidadesSedeINPI", Title: "Pueblos Indígenas", Group: "Comunidades Indígenas y Afromexicanas",
			Color: "#666666", Kind: Point, Dataset: "inpi",
			Paint: map[string]any{
				"circle-radius": 2, "circle-color": "#666666",
				"circle-stroke-color": "#ffffff", "circle-stroke-width": 0.2,
			},
			Fields: []Field{
				{"Entidad", "NOM_ENT"}, {"Municipio", "NOM_MUN"}, {"Comunidad", "NOM_COM"},
				{"Pueblo", "Pueblo"}, {"Población total", "POBTOT"},
				{"Pobl en hogares indígenas", "PHOG_IND"}, {"Afrodescendientes", "POB_AFRO"},
				{"Tipo", "TIPOLOGIAA"}, {"Marginación", "GM_2020"}, {"Tipo asentamiento", "TIPOLOGIAC"},
				{"Región", "REGION"}, {"Oficina de Representación", "UA"},
				{"Sede que le corresponde", "Sede"},
			},
		},
		Descriptor{
			ID: "PresidenciasMunicipales", Title: "Cabeceras Municipales", Group: "Presidencias Municipales",
			Color: "#000000", Kind: Point, Dataset: "PresidenciasMunicipales",
			Paint: map[string]any{
				"circle-radius": 1.7, "circle-color": "#000000",
				"circle-stroke-color": "#ffffff", "circle-stroke-width": 0.5,
			},
			Fields: []Field{{"Entidad", "entidad"}, {"Municipio", "municipio"}, {"Dirección", "direccion"}},
		},
		wifiOverlay("PuntosWiFiCFE_4G", "4G", "#9f2241", "4G"),
		wifiOverlay("PuntosWiFiCFE_FIBRA", "Fibra o Cobre", "#cda578", "FIBRA O COBRE"),
		wifiOverlay("PuntosWiFiCFE_SATELITAL", "Satelital", "#235b4e", "SATELITAL"),
		Descriptor{
			ID: "polos", Title: "Polos", Group: "Nuevos polos de desarrollo", Color: "#264653",
			Kind: Polygon, Dataset: "polos", Cursor: true,
			Paint: map[string]any{
				"fill-color": "#264653", "fill-opacity": 0.6, "fill-outline-color": "#ffffff",
			},
			Fields: []Field{{"Polígono", "layer"}},
		},
		Descriptor{
			ID: "trazo_actual", Title: "Trazo actual", Group: "Nuevos polos de desarrollo", Color: "#9f2241",
			Kind: Line, Dataset: "trazo_actual", Cursor: true,
			Paint: map[string]any{
				"line-color": "#9f2241", "line-width": 3,
			},
			Fields: []Field{{"Tramo", "tramo"}, {"Longitud (km)", "km"}},
		},
	)
	return ds
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := NewCatalog(DefaultDescriptors()...)
	if err != nil {
		panic(fmt.Sprintf("built-in overlay catalog: %v", err))
	}
	return c
}
