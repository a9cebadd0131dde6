package fetcher

// cleanupScripts are injected into the rendered page, in order, before
// the HTML is captured. Each script is self-contained and must tolerate
// pages where its target does not exist.
var cleanupScripts = []string{
	// 1. Pin Intl.DateTimeFormat to en-US so rendered dates parse predictably.
	`(() => {
		const Native = Intl.DateTimeFormat;
		const Pinned = function (locale, options) { return new Native('en-US', options); };
		Pinned.prototype = Native.prototype;
		Pinned.supportedLocalesOf = Native.supportedLocalesOf;
		Intl.DateTimeFormat = Pinned;
	})();`,

	// 2. Click the first cookie/consent accept control.
	`(() => {
		const candidates = document.querySelectorAll('button, a');
		for (const el of candidates) {
			const label = (el.textContent || '').toLowerCase();
			if (label.includes('accept') && (label.includes('cookie') || label.includes('consent'))) {
				try { el.click(); } catch (e) {}
				break;
			}
		}
	})();`,

	// 3. Remove paywall/subscribe elements and fixed-position barriers,
	//    then restore page scroll.
	`(() => {
		document.querySelectorAll('[id*="paywall" i], [class*="paywall" i], [id*="subscribe" i], [class*="subscribe" i]').forEach((el) => el.remove());
		document.querySelectorAll('div, section, aside').forEach((el) => {
			const style = window.getComputedStyle(el);
			if ((style.position === 'fixed' || style.position === 'sticky') && parseInt(style.zIndex, 10) >= 100) {
				el.remove();
			}
		});
		document.body.style.overflow = 'auto';
		document.body.style.position = 'static';
		document.documentElement.style.overflow = 'auto';
	})();`,

	// 4. Remove noise elements that never belong to article text.
	`(() => {
		const selectors = [
			'script', 'style', 'iframe', 'noscript',
			'[class*="advert" i]', '[id*="advert" i]', '[class*="-ad-" i]', '[class^="ad-" i]',
			'[class*="social" i]', '[class*="share" i]', '[class*="comment" i]', '[id*="comment" i]',
			'nav', 'aside', 'form', '[class*="newsletter" i]', '[id*="newsletter" i]',
		];
		document.querySelectorAll(selectors.join(', ')).forEach((el) => el.remove());
		document.querySelectorAll('header, footer').forEach((el) => {
			if (!el.closest('article')) el.remove();
		});
	})();`,

	// 5. Strip every attribute except href, src, alt, title.
	`(() => {
		const keep = new Set(['href', 'src', 'alt', 'title']);
		document.querySelectorAll('*').forEach((el) => {
			for (const attr of Array.from(el.attributes)) {
				if (!keep.has(attr.name.toLowerCase())) {
					el.removeAttribute(attr.name);
				}
			}
		});
	})();`,

	// 6. Iteratively remove empty block elements until a pass removes none.
	`(() => {
		const blocks = 'div, section, p, span, ul, ol, li, figure, aside';
		let removed = true;
		while (removed) {
			removed = false;
			document.querySelectorAll(blocks).forEach((el) => {
				if (!el.textContent.trim() && !el.querySelector('img')) {
					el.remove();
					removed = true;
				}
			});
		}
	})();`,

	// 7. Remove meta tags with at most one attribute.
	`(() => {
		document.querySelectorAll('meta').forEach((el) => {
			if (el.attributes.length <= 1) el.remove();
		});
	})();`,
}
