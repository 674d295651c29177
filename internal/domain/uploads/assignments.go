package uploads

// AssignmentMap returns defect id -> image id, skipping empty image ids.
func (m *Metadata) AssignmentMap() map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for defectID, imageID := range m.Assignments.DefectToImage {
		if imageID == "" {
			continue
		}
		out[defectID] = string(imageID)
	}
	return out
}

// Assign links imageID to defectID. Any assignment already using either id is dropped first,
// so the mapping stays one-to-one in both directions.
func (m *Metadata) Assign(defectID, imageID string) {
	if m.Assignments.DefectToImage == nil {
		m.Assignments.DefectToImage = map[string]ImageID{}
	}
	for key, assigned := range m.Assignments.DefectToImage {
		if key == defectID || string(assigned) == imageID {
			delete(m.Assignments.DefectToImage, key)
		}
	}
	m.Assignments.DefectToImage[defectID] = ImageID(imageID)
}

// Unassign drops every assignment pointing at imageID and reports whether any existed.
func (m *Metadata) Unassign(imageID string) bool {
	removed := false
	for key, assigned := range m.Assignments.DefectToImage {
		if string(assigned) == imageID {
			delete(m.Assignments.DefectToImage, key)
			removed = true
		}
	}
	return removed
}

// ResolveImage returns the image directory and file name for imageID.
func (m *Metadata) ResolveImage(imageID string) (dir, file string, ok bool) {
	if m == nil || m.ImageDir == "" {
		return "", "", false
	}
	for _, img := range m.Images {
		if string(img.ID) == imageID {
			if img.File == "" {
				return "", "", false
			}
			return m.ImageDir, img.File, true
		}
	}
	return "", "", false
}

// ImageEntries lists the images with the defect each one is assigned to.
func (m *Metadata) ImageEntries() []ImageEntry {
	if m == nil {
		return []ImageEntry{}
	}
	imageToDefect := map[string]string{}
	for defectID, imageID := range m.AssignmentMap() {
		imageToDefect[imageID] = defectID
	}
	out := make([]ImageEntry, 0, len(m.Images))
	for _, img := range m.Images {
		e := ImageEntry{
			ID:     string(img.ID),
			File:   img.File,
			Page:   img.Page,
			Width:  img.Width,
			Height: img.Height,
		}
		if d, ok := imageToDefect[e.ID]; ok {
			e.AssignedDefect = &d
		}
		out = append(out, e)
	}
	return out
}

// AssignedImage returns the image assigned to defectID. ok is false when nothing is
// assigned or the assignment is stale (the image is no longer listed).
func (m *Metadata) AssignedImage(defectID string) (img Image, assigned, ok bool) {
	imageID, found := m.AssignmentMap()[defectID]
	if !found {
		return Image{}, false, false
	}
	for _, candidate := range m.Images {
		if string(candidate.ID) == imageID {
			return candidate, true, true
		}
	}
	return Image{}, true, false
}
